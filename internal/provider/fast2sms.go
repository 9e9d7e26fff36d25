package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

const fast2smsDefaultBaseURL = "https://www.fast2sms.com"

// Fast2SMSAdapter sends DLT SMS through the bulk route. Recipients sharing the
// same variable values go out in one request.
type Fast2SMSAdapter struct {
	transport *httpTransport
	chunkSize int
	logger    zerolog.Logger
}

// NewFast2SMSAdapter creates an SMS aggregator adapter
func NewFast2SMSAdapter(cfg TransportConfig, logger zerolog.Logger) *Fast2SMSAdapter {
	size := cfg.ChunkSize
	if size < 1 {
		size = 500
	}
	return &Fast2SMSAdapter{
		transport: newHTTPTransport(models.ProviderFast2SMS, cfg, fast2smsDefaultBaseURL),
		chunkSize: size,
		logger:    logger.With().Str("provider", string(models.ProviderFast2SMS)).Logger(),
	}
}

func (a *Fast2SMSAdapter) Name() models.Provider             { return models.ProviderFast2SMS }
func (a *Fast2SMSAdapter) IdentityKind() models.IdentityKind { return models.IdentityPhone }

// ValidateConfig requires an API key, a registered sender id and the DLT template id
func (a *Fast2SMSAdapter) ValidateConfig(cfg Config) error {
	if err := requireField(cfg.APIKey, "provider_config.api_key"); err != nil {
		return err
	}
	sender := cfg.Setting("sender_id")
	if sender == "" {
		sender = cfg.Sender
	}
	if err := requireField(sender, "provider_config.sender_id"); err != nil {
		return err
	}
	return requireField(cfg.Setting("dlt_template_id"), "provider_config.dlt_template_id")
}

type fast2smsRequest struct {
	Route           string `json:"route"`
	SenderID        string `json:"sender_id"`
	Message         string `json:"message"`
	VariablesValues string `json:"variables_values"`
	Numbers         string `json:"numbers"`
	Flash           int    `json:"flash"`
}

type fast2smsResponse struct {
	Return    bool        `json:"return"`
	RequestID string      `json:"request_id"`
	Message   interface{} `json:"message"`
}

// indianMobile accepts 91-prefixed twelve digit keys
func indianMobile(key string) bool {
	return len(key) == 12 && strings.HasPrefix(key, "91") && models.ValidPhoneKey(key)
}

// variablesValue joins placeholder values in the order listed by the "variables" setting
func variablesValue(m Message, order []string) string {
	vals := make([]string, 0, len(order))
	for _, name := range order {
		vals = append(vals, m.Fields[name])
	}
	return strings.Join(vals, "|")
}

// Send posts /dev/bulkV2 requests grouped by variable values, then chunked
func (a *Fast2SMSAdapter) Send(ctx context.Context, batch Batch) (*Result, error) {
	valid, res := partitionValid(batch.Messages, indianMobile, "not an Indian mobile number")

	var order []string
	if v := batch.Config.Setting("variables"); v != "" {
		for _, name := range strings.Split(v, ",") {
			order = append(order, strings.TrimSpace(name))
		}
	}

	groupOrder := []string{}
	groups := map[string][]Message{}
	for _, m := range valid {
		key := variablesValue(m, order)
		if _, ok := groups[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], m)
	}

	var units [][]Message
	for _, key := range groupOrder {
		units = append(units, chunk(groups[key], a.chunkSize)...)
	}

	sender := batch.Config.Setting("sender_id")
	if sender == "" {
		sender = batch.Config.Sender
	}
	headers := map[string]string{"authorization": batch.Config.APIKey}

	out, err := deliverUnits(ctx, units, res, func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
		numbers := make([]string, 0, len(unit))
		for _, m := range unit {
			numbers = append(numbers, strings.TrimPrefix(m.RecipientIdentity, "91"))
		}

		req := fast2smsRequest{
			Route:           "dlt",
			SenderID:        sender,
			Message:         batch.Config.Setting("dlt_template_id"),
			VariablesValues: variablesValue(unit[0], order),
			Numbers:         strings.Join(numbers, ","),
		}

		var resp fast2smsResponse
		err := a.transport.postJSON(ctx, batch.Config.APIKey, "/dev/bulkV2", headers, req, &resp)
		if errors.Is(err, ErrUnreadableAcceptance) {
			a.logger.Warn().Err(err).Str("job_id", batch.JobID).Msg("accepted without a readable response")
			return acceptUnreadable(batch.JobID, unit), nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if !resp.Return {
			return nil, nil, &MessageRejectedError{Reason: fmt.Sprintf("fast2sms: %v", resp.Message)}
		}

		accepted := make([]Accepted, 0, len(unit))
		for _, m := range unit {
			accepted = append(accepted, Accepted{Identity: m.RecipientIdentity, ProviderMessageID: resp.RequestID})
		}
		return accepted, nil, nil
	})
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", batch.JobID).Msg("fast2sms submission failed")
		return nil, fmt.Errorf("fast2sms send: %w", err)
	}

	return out, nil
}
