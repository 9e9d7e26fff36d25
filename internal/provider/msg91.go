package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

const msg91DefaultBaseURL = "https://control.msg91.com"

// MSG91Adapter sends DLT-registered SMS through the flow API, chunked
type MSG91Adapter struct {
	transport *httpTransport
	chunkSize int
	logger    zerolog.Logger
}

// NewMSG91Adapter creates an SMS aggregator adapter
func NewMSG91Adapter(cfg TransportConfig, logger zerolog.Logger) *MSG91Adapter {
	size := cfg.ChunkSize
	if size < 1 {
		size = 500
	}
	return &MSG91Adapter{
		transport: newHTTPTransport(models.ProviderMSG91, cfg, msg91DefaultBaseURL),
		chunkSize: size,
		logger:    logger.With().Str("provider", string(models.ProviderMSG91)).Logger(),
	}
}

func (a *MSG91Adapter) Name() models.Provider             { return models.ProviderMSG91 }
func (a *MSG91Adapter) IdentityKind() models.IdentityKind { return models.IdentityPhone }

// ValidateConfig requires an auth key and the DLT template id
func (a *MSG91Adapter) ValidateConfig(cfg Config) error {
	if err := requireField(cfg.APIKey, "provider_config.api_key"); err != nil {
		return err
	}
	return requireField(cfg.Setting("template_id"), "provider_config.template_id")
}

type msg91FlowRequest struct {
	TemplateID string              `json:"template_id"`
	Sender     string              `json:"sender,omitempty"`
	ShortURL   string              `json:"short_url"`
	Recipients []map[string]string `json:"recipients"`
}

type msg91FlowResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Send posts recipients in chunks to /api/v5/flow. Each recipient carries its
// rendered placeholder values as flow variables.
func (a *MSG91Adapter) Send(ctx context.Context, batch Batch) (*Result, error) {
	valid, res := partitionValid(batch.Messages, models.ValidPhoneKey, "invalid phone number")

	headers := map[string]string{"authkey": batch.Config.APIKey}
	templateID := batch.Config.Setting("template_id")

	out, err := deliverUnits(ctx, chunk(valid, a.chunkSize), res, func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
		req := msg91FlowRequest{
			TemplateID: templateID,
			Sender:     batch.Config.Sender,
			ShortURL:   "0",
			Recipients: make([]map[string]string, 0, len(unit)),
		}
		for _, m := range unit {
			r := make(map[string]string, len(m.Fields)+1)
			for k, v := range m.Fields {
				r[k] = v
			}
			r["mobiles"] = m.RecipientIdentity
			req.Recipients = append(req.Recipients, r)
		}

		var resp msg91FlowResponse
		err := a.transport.postJSON(ctx, batch.Config.APIKey, "/api/v5/flow/", headers, req, &resp)
		if errors.Is(err, ErrUnreadableAcceptance) {
			a.logger.Warn().Err(err).Str("job_id", batch.JobID).Msg("accepted without a readable response")
			return acceptUnreadable(batch.JobID, unit), nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if !strings.EqualFold(resp.Type, "success") {
			return nil, nil, &MessageRejectedError{Reason: "msg91: " + resp.Message}
		}

		accepted := make([]Accepted, 0, len(unit))
		for i, m := range unit {
			accepted = append(accepted, Accepted{
				Identity:          m.RecipientIdentity,
				ProviderMessageID: fmt.Sprintf("%s:%d", resp.Message, i),
			})
		}
		return accepted, nil, nil
	})
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", batch.JobID).Msg("msg91 submission failed")
		return nil, fmt.Errorf("msg91 send: %w", err)
	}

	return out, nil
}
