package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/repository"
)

// JobService exposes the read and delete paths of campaign job records
type JobService interface {
	GetJob(ctx context.Context, companyID, jobID string) (*models.CampaignJob, error)
	ListJobs(ctx context.Context, filter models.JobFilter) (*JobListResult, error)
	GetRecipientOutcomes(ctx context.Context, companyID, jobID string, filter models.OutcomeFilter) (*RecipientOutcomesResult, error)
	DeleteJob(ctx context.Context, companyID, jobID string) error
	FailStale(ctx context.Context, before time.Time) ([]string, error)
}

type jobService struct {
	jobs   repository.CampaignJobRepository
	logger zerolog.Logger
}

// NewJobService creates a new job service
func NewJobService(jobs repository.CampaignJobRepository, logger zerolog.Logger) JobService {
	return &jobService{
		jobs:   jobs,
		logger: logger.With().Str("component", "job_service").Logger(),
	}
}

// GetJob retrieves a job owned by companyID
func (s *jobService) GetJob(ctx context.Context, companyID, jobID string) (*models.CampaignJob, error) {
	return s.jobs.GetByID(ctx, companyID, jobID)
}

// ListJobs retrieves a company's jobs with pagination
func (s *jobService) ListJobs(ctx context.Context, filter models.JobFilter) (*JobListResult, error) {
	if filter.CompanyID == "" {
		return nil, models.NewValidationError("company_id", "is required")
	}
	if filter.Provider != "" && !models.IsValidProvider(filter.Provider) {
		return nil, models.NewValidationError("provider", fmt.Sprintf("unsupported provider %q", filter.Provider))
	}
	if filter.Status != "" && !models.IsValidJobStatus(filter.Status) {
		return nil, models.NewValidationError("status", fmt.Sprintf("invalid status %q", filter.Status))
	}

	jobs, totalCount, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign jobs: %w", err)
	}

	return &JobListResult{
		Data:       jobs,
		Pagination: models.NewPageRequest(filter.Page, filter.PageSize).Result(totalCount),
	}, nil
}

// GetRecipientOutcomes pages through a job's outcomes in recipient order
func (s *jobService) GetRecipientOutcomes(ctx context.Context, companyID, jobID string, filter models.OutcomeFilter) (*RecipientOutcomesResult, error) {
	switch filter.Status {
	case "", models.OutcomePending, models.OutcomeSent, models.OutcomeFailed:
	default:
		return nil, models.NewValidationError("status", fmt.Sprintf("invalid outcome status %q", filter.Status))
	}

	outcomes, err := s.jobs.GetRecipients(ctx, companyID, jobID)
	if err != nil {
		return nil, err
	}

	if filter.Status != "" {
		matched := make(models.RecipientOutcomes, 0, len(outcomes))
		for _, o := range outcomes {
			if o.Status == filter.Status {
				matched = append(matched, o)
			}
		}
		outcomes = matched
	}

	pr := models.NewPageRequest(filter.Page, filter.PageSize)
	start, end := pr.Window(len(outcomes))

	page := make([]models.RecipientOutcome, end-start)
	copy(page, outcomes[start:end])

	return &RecipientOutcomesResult{
		JobID:      jobID,
		Data:       page,
		Pagination: pr.Result(int64(len(outcomes))),
	}, nil
}

// DeleteJob removes a job. A job that is still sending is rejected and left untouched.
func (s *jobService) DeleteJob(ctx context.Context, companyID, jobID string) error {
	if err := s.jobs.Delete(ctx, companyID, jobID); err != nil {
		var inProgress *models.JobInProgressError
		if errors.As(err, &inProgress) || errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Str("company_id", companyID).Msg("failed to delete campaign job")
		return fmt.Errorf("failed to delete campaign job: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Str("company_id", companyID).Msg("campaign job deleted")
	return nil
}

const (
	staleBatchSize     = 100
	reasonStaleSending = "finalization did not complete; recipient outcomes are unknown"
)

// FailStale finalizes as failed every job still sending since before the cutoff.
// These are jobs whose worker died or whose finalize write never landed. It returns
// the ids it finalized; a job finalized concurrently is skipped.
func (s *jobService) FailStale(ctx context.Context, before time.Time) ([]string, error) {
	var failed []string
	reason := reasonStaleSending

	for {
		jobs, err := s.jobs.ListStale(ctx, before, staleBatchSize)
		if err != nil {
			return failed, err
		}

		progressed := false
		for _, job := range jobs {
			err := s.jobs.Finalize(ctx, job.ID, models.JobFinalization{
				Status:      models.JobStatusFailed,
				Outcomes:    models.RecipientOutcomes{},
				ErrorReason: &reason,
			})
			if errors.Is(err, models.ErrConflict) {
				continue
			}
			if err != nil {
				return failed, fmt.Errorf("failed to finalize stale job %s: %w", job.ID, err)
			}

			progressed = true
			failed = append(failed, job.ID)
			s.logger.Warn().
				Str("job_id", job.ID).
				Str("company_id", job.CompanyID).
				Time("updated_at", job.UpdatedAt).
				Msg("stale sending job finalized as failed")
		}

		if len(jobs) < staleBatchSize || !progressed {
			return failed, nil
		}
	}
}
