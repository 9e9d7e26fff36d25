package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// WATIAdapter sends approved WhatsApp templates, one call per recipient
type WATIAdapter struct {
	transport *httpTransport
	logger    zerolog.Logger
}

// NewWATIAdapter creates a WhatsApp template adapter. The base URL is tenant specific.
func NewWATIAdapter(cfg TransportConfig, logger zerolog.Logger) *WATIAdapter {
	return &WATIAdapter{
		transport: newHTTPTransport(models.ProviderWATI, cfg, "https://live-server.wati.io"),
		logger:    logger.With().Str("provider", string(models.ProviderWATI)).Logger(),
	}
}

func (a *WATIAdapter) Name() models.Provider             { return models.ProviderWATI }
func (a *WATIAdapter) IdentityKind() models.IdentityKind { return models.IdentityPhone }

// ValidateConfig requires an access token and the approved template name
func (a *WATIAdapter) ValidateConfig(cfg Config) error {
	if err := requireField(cfg.APIKey, "provider_config.api_key"); err != nil {
		return err
	}
	return requireField(cfg.Setting("template_name"), "provider_config.template_name")
}

type watiParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type watiTemplateRequest struct {
	TemplateName  string          `json:"template_name"`
	BroadcastName string          `json:"broadcast_name"`
	Parameters    []watiParameter `json:"parameters"`
}

type watiTemplateResponse struct {
	Result    bool   `json:"result"`
	Info      string `json:"info"`
	MessageID string `json:"messageId"`
}

// Send posts each message to /api/v1/sendTemplateMessage
func (a *WATIAdapter) Send(ctx context.Context, batch Batch) (*Result, error) {
	valid, res := partitionValid(batch.Messages, models.ValidPhoneKey, "invalid WhatsApp number")

	templateName := batch.Config.Setting("template_name")
	headers := map[string]string{"Authorization": "Bearer " + batch.Config.APIKey}

	out, err := deliverUnits(ctx, chunk(valid, 1), res, func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
		m := unit[0]
		tmpl := templateName
		if m.TemplateRef != "" {
			tmpl = m.TemplateRef
		}

		names := make([]string, 0, len(m.Fields))
		for name := range m.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		params := make([]watiParameter, 0, len(names))
		for _, name := range names {
			params = append(params, watiParameter{Name: name, Value: m.Fields[name]})
		}

		req := watiTemplateRequest{TemplateName: tmpl, BroadcastName: batch.JobID, Parameters: params}
		path := "/api/v1/sendTemplateMessage?whatsappNumber=" + url.QueryEscape(m.RecipientIdentity)

		var resp watiTemplateResponse
		err := a.transport.postJSON(ctx, batch.Config.APIKey, path, headers, req, &resp)
		if errors.Is(err, ErrUnreadableAcceptance) {
			a.logger.Warn().Err(err).Str("job_id", batch.JobID).Msg("accepted without a readable response")
			return acceptUnreadable(batch.JobID, unit), nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if !resp.Result {
			return nil, []Rejected{{Identity: m.RecipientIdentity, Reason: "wati: " + resp.Info}}, nil
		}

		id := resp.MessageID
		if id == "" {
			id = batch.JobID + ":" + m.RecipientIdentity
		}
		return []Accepted{{Identity: m.RecipientIdentity, ProviderMessageID: id}}, nil, nil
	})
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", batch.JobID).Msg("wati submission failed")
		return nil, fmt.Errorf("wati send: %w", err)
	}

	return out, nil
}
