package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// SMTPDialer opens a relay session
type SMTPDialer interface {
	Dial() (gomail.SendCloser, error)
}

// SMTPConfig holds relay connection settings
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	RatePerSecond float64
	Burst         int
}

// SMTPAdapter relays email over one SMTP session per batch
type SMTPAdapter struct {
	dialer  SMTPDialer
	domain  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewSMTPAdapter creates an adapter dialing the configured relay
func NewSMTPAdapter(cfg SMTPConfig, logger zerolog.Logger) *SMTPAdapter {
	return NewSMTPAdapterWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, logger)
}

// NewSMTPAdapterWithDialer creates an adapter using dialer
func NewSMTPAdapterWithDialer(dialer SMTPDialer, cfg SMTPConfig, logger zerolog.Logger) *SMTPAdapter {
	domain := cfg.Host
	if domain == "" {
		domain = "localhost"
	}
	return &SMTPAdapter{
		dialer:  dialer,
		domain:  domain,
		limiter: newLimiter(cfg.RatePerSecond, cfg.Burst),
		breaker: newBreaker(models.ProviderSMTP),
		logger:  logger.With().Str("provider", string(models.ProviderSMTP)).Logger(),
	}
}

func (a *SMTPAdapter) Name() models.Provider             { return models.ProviderSMTP }
func (a *SMTPAdapter) IdentityKind() models.IdentityKind { return models.IdentityEmail }

// ValidateConfig requires a valid sender address. Relay credentials come from process config.
func (a *SMTPAdapter) ValidateConfig(cfg Config) error {
	if err := requireField(cfg.Sender, "sender_identity"); err != nil {
		return err
	}
	if !models.ValidEmailKey(models.NormalizeEmail(cfg.Sender)) {
		return models.NewValidationError("sender_identity", "must be an email address")
	}
	return nil
}

// Send dials once and relays each message. A failed dial is provider-level;
// per-message SMTP errors reject only that recipient.
func (a *SMTPAdapter) Send(ctx context.Context, batch Batch) (*Result, error) {
	valid, res := partitionValid(batch.Messages, models.ValidEmailKey, "invalid email address")
	if len(valid) == 0 {
		return res, nil
	}

	sc, err := a.breaker.Execute(func() (interface{}, error) {
		s, err := a.dialer.Dial()
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", batch.JobID).Msg("smtp dial failed")
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	session := sc.(gomail.SendCloser)
	defer session.Close()

	contentType := "text/plain"
	if batch.Config.MessageType == "html" {
		contentType = "text/html"
	}

	return deliverUnits(ctx, chunk(valid, 1), res, func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		m := unit[0]
		messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), a.domain)

		msg := gomail.NewMessage()
		msg.SetHeader("From", batch.Config.Sender)
		msg.SetHeader("To", m.RecipientIdentity)
		msg.SetHeader("Subject", m.Subject)
		msg.SetHeader("Message-ID", messageID)
		msg.SetHeader("X-Campaign-Job", batch.JobID)
		msg.SetDateHeader("Date", time.Now())
		msg.SetBody(contentType, m.Body)

		if err := gomail.Send(session, msg); err != nil {
			return nil, []Rejected{{Identity: m.RecipientIdentity, Reason: strings.TrimSpace(err.Error())}}, nil
		}
		return []Accepted{{Identity: m.RecipientIdentity, ProviderMessageID: messageID}}, nil, nil
	})
}
