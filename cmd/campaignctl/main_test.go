package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/handler"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunPreview(t *testing.T) {
	path := writeFile(t, "preview.yaml", `
message_template: "Hi {name}, use {code}"
template_mappings:
  - placeholder_name: name
    mapping_type: contact_field
    mapping_value: first_name
sample_contact:
  id: c1
  email: ana@example.com
  fields:
    first_name: Ana
`)

	var out bytes.Buffer
	require.NoError(t, runPreview(&out, path))

	var got service.PreviewResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Hi Ana, use [code]", got.Rendered)
	assert.Equal(t, []string{"name", "code"}, got.Placeholders)
	assert.Equal(t, []string{"code"}, got.Unmapped)
}

func TestRunPreviewRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "preview.yaml", `
message_template: "Hi"
template: "typo"
`)

	err := runPreview(&bytes.Buffer{}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestDecodeCampaignFile(t *testing.T) {
	path := writeFile(t, "campaign.yaml", `
name: Spring sale
provider: brevo
message_template: "Hi {name}"
subject: "Hello {name}"
template_mappings:
  - placeholder_name: name
    mapping_type: contact_field
    mapping_value: first_name
list_ids: [list-a, list-b]
provider_config:
  api_key: k
sender_identity: news@example.com
`)

	var req service.CreateJobRequest
	require.NoError(t, decodeYAMLFile(path, &req))
	require.NoError(t, req.Validate())

	d := req.ToDispatchRequest("co-1", "actor-1")
	assert.Equal(t, "co-1", d.CompanyID)
	assert.Equal(t, []string{"list-a", "list-b"}, d.ListIDs)
	assert.Equal(t, "k", d.ProviderSettings["api_key"])
	assert.Equal(t, "Hello {name}", d.Subject)
}

func TestIssueToken(t *testing.T) {
	secret := []byte("test-secret")

	var out bytes.Buffer
	require.NoError(t, issueToken(&out, secret, "co-1", "ops", time.Hour))

	p, err := handler.ParseToken(secret, strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, handler.Principal{CompanyID: "co-1", ActorID: "ops"}, p)

	assert.Error(t, issueToken(&bytes.Buffer{}, nil, "co-1", "ops", time.Hour))
	assert.Error(t, issueToken(&bytes.Buffer{}, secret, "co-1", "", time.Hour))
}
