package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

const brevoDefaultBaseURL = "https://api.brevo.com"

// BrevoAdapter sends transactional email, one API call per recipient
type BrevoAdapter struct {
	transport *httpTransport
	logger    zerolog.Logger
}

// NewBrevoAdapter creates a transactional email adapter
func NewBrevoAdapter(cfg TransportConfig, logger zerolog.Logger) *BrevoAdapter {
	return &BrevoAdapter{
		transport: newHTTPTransport(models.ProviderBrevo, cfg, brevoDefaultBaseURL),
		logger:    logger.With().Str("provider", string(models.ProviderBrevo)).Logger(),
	}
}

func (a *BrevoAdapter) Name() models.Provider             { return models.ProviderBrevo }
func (a *BrevoAdapter) IdentityKind() models.IdentityKind { return models.IdentityEmail }

// ValidateConfig requires an API key and a valid sender address
func (a *BrevoAdapter) ValidateConfig(cfg Config) error {
	if err := requireField(cfg.APIKey, "provider_config.api_key"); err != nil {
		return err
	}
	if err := requireField(cfg.Sender, "sender_identity"); err != nil {
		return err
	}
	if !models.ValidEmailKey(models.NormalizeEmail(cfg.Sender)) {
		return models.NewValidationError("sender_identity", "must be an email address")
	}
	return nil
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmailRequest struct {
	Sender      brevoAddress      `json:"sender"`
	To          []brevoAddress    `json:"to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"htmlContent,omitempty"`
	TextContent string            `json:"textContent,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

// Send posts each message to /v3/smtp/email
func (a *BrevoAdapter) Send(ctx context.Context, batch Batch) (*Result, error) {
	valid, res := partitionValid(batch.Messages, models.ValidEmailKey, "invalid email address")

	sender := brevoAddress{Email: batch.Config.Sender, Name: batch.Config.Setting("sender_name")}
	headers := map[string]string{"api-key": batch.Config.APIKey}
	html := batch.Config.MessageType == "html"

	out, err := deliverUnits(ctx, chunk(valid, 1), res, func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
		m := unit[0]
		req := brevoEmailRequest{
			Sender:  sender,
			To:      []brevoAddress{{Email: m.RecipientIdentity}},
			Subject: m.Subject,
			Headers: map[string]string{"X-Mailin-custom": "job_id:" + batch.JobID},
			Tags:    []string{batch.JobID},
		}
		if html {
			req.HTMLContent = m.Body
		} else {
			req.TextContent = m.Body
		}

		var resp brevoEmailResponse
		err := a.transport.postJSON(ctx, batch.Config.APIKey, "/v3/smtp/email", headers, req, &resp)
		if errors.Is(err, ErrUnreadableAcceptance) {
			a.logger.Warn().Err(err).Str("job_id", batch.JobID).Msg("accepted without a readable response")
			return acceptUnreadable(batch.JobID, unit), nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if resp.MessageID == "" {
			return acceptUnreadable(batch.JobID, unit), nil, nil
		}
		return []Accepted{{Identity: m.RecipientIdentity, ProviderMessageID: resp.MessageID}}, nil, nil
	})
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", batch.JobID).Msg("brevo submission failed")
		return nil, fmt.Errorf("brevo send: %w", err)
	}

	return out, nil
}
