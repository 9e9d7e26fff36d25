package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

// DispatchProcessor runs queued dispatch requests through the orchestrator
type DispatchProcessor struct {
	dispatcher service.DispatchService
	now        func() time.Time
	logger     zerolog.Logger
}

// NewDispatchProcessor creates a new dispatch processor
func NewDispatchProcessor(dispatcher service.DispatchService, logger zerolog.Logger) *DispatchProcessor {
	return &DispatchProcessor{
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     logger.With().Str("component", "worker").Logger(),
	}
}

// Process handles a single dispatch job.
//
// Outcomes already recorded on a job record, and requests that can never
// succeed, are logged and acknowledged. Failures that leave no finalized job
// record are returned.
func (p *DispatchProcessor) Process(ctx context.Context, job *models.DispatchJob) error {
	log := p.logger.With().
		Str("request_id", job.RequestID).
		Str("company_id", job.Request.CompanyID).
		Str("provider", string(job.Request.Provider)).
		Logger()

	if !job.EnqueuedAt.IsZero() {
		log.Debug().Dur("queued_for", p.now().Sub(job.EnqueuedAt)).Msg("processing dispatch")
	}

	result, err := p.dispatcher.CreateAndDispatch(ctx, job.Request)

	var (
		validationErr  *models.ValidationError
		noRecipients   *models.NoRecipientsError
		unavailableErr *models.ProviderUnavailableError
	)

	switch {
	case err == nil:
		log.Info().
			Str("job_id", result.JobID).
			Str("status", string(result.Status)).
			Int("sent", result.Stats.Sent).
			Int("failed", result.Stats.Failed).
			Msg("dispatch finished")
		return nil

	case errors.As(err, &validationErr):
		log.Warn().Str("field", validationErr.Field).Msg("dropping invalid dispatch request: " + validationErr.Message)
		return nil

	case errors.As(err, &noRecipients):
		log.Warn().Str("job_id", noRecipients.JobID).Strs("list_ids", noRecipients.ListIDs).Msg("dispatch had no recipients")
		return nil

	case errors.As(err, &unavailableErr):
		jobID := ""
		if result != nil {
			jobID = result.JobID
		}
		log.Warn().Err(err).Str("job_id", jobID).Msg("provider unavailable, job finalized as failed")
		return nil

	case result != nil:
		log.Error().Err(err).Str("job_id", result.JobID).Str("status", string(result.Status)).Msg("dispatch failed after the job was recorded")
		return nil

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Msg("dispatch cancelled before submission")
		return err

	default:
		log.Error().Err(err).Msg("dispatch failed")
		return fmt.Errorf("dispatch %s: %w", job.RequestID, err)
	}
}
