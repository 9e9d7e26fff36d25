package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// CampaignJobRepository defines the interface for campaign job record access.
// Every read and delete is scoped to the owning company.
type CampaignJobRepository interface {
	Create(ctx context.Context, job *models.CampaignJob) error
	MarkSubmitted(ctx context.Context, jobID string, at time.Time) error
	Finalize(ctx context.Context, jobID string, fin models.JobFinalization) error
	GetByID(ctx context.Context, companyID, jobID string) (*models.CampaignJob, error)
	GetRecipients(ctx context.Context, companyID, jobID string) (models.RecipientOutcomes, error)
	List(ctx context.Context, filter models.JobFilter) ([]*models.CampaignJob, int64, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.CampaignJob, error)
	Delete(ctx context.Context, companyID, jobID string) error
}

// campaignJobRepository implements CampaignJobRepository using PostgreSQL
type campaignJobRepository struct {
	db *sqlx.DB
}

// NewCampaignJobRepository creates a new campaign job repository
func NewCampaignJobRepository(db *sqlx.DB) CampaignJobRepository {
	return &campaignJobRepository{db: db}
}

// jobColumns excludes the recipients document, which is only read by GetRecipients
const jobColumns = `
	id, schema_version, company_id, name, provider, message_type, message_template, subject,
	template_mappings, list_ids, provider_settings, sender_identity, status,
	stats_total, stats_sent, stats_delivered, stats_failed,
	duplicates_removed, skipped_no_identity, error_reason, retry_of,
	created_by, created_at, submitted_at, sent_at, updated_at`

// Create inserts a new job record, assigning its id when empty
func (r *campaignJobRepository) Create(ctx context.Context, job *models.CampaignJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SchemaVersion == 0 {
		job.SchemaVersion = models.CurrentJobSchemaVersion
	}
	if !models.CanTransition("", job.Status) {
		return models.NewValidationError("status", fmt.Sprintf("job cannot be created as %q", job.Status))
	}

	query := `
		INSERT INTO campaign_jobs (
			id, schema_version, company_id, name, provider, message_type, message_template, subject,
			template_mappings, list_ids, provider_settings, sender_identity, status,
			duplicates_removed, skipped_no_identity, retry_of, created_by
		) VALUES (
			:id, :schema_version, :company_id, :name, :provider, :message_type, :message_template, :subject,
			:template_mappings, :list_ids, :provider_settings, :sender_identity, :status,
			:duplicates_removed, :skipped_no_identity, :retry_of, :created_by
		)
		RETURNING created_at, updated_at`

	rows, err := r.db.NamedQueryContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("failed to create campaign job: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan campaign job timestamps: %w", err)
		}
	}

	return rows.Err()
}

// MarkSubmitted stamps submitted_at once. A second stamp is a conflict, which makes
// accidental double submission visible.
func (r *campaignJobRepository) MarkSubmitted(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE campaign_jobs
		SET submitted_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'sending' AND submitted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, at, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark campaign job submitted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrConflictWithMsg(fmt.Sprintf("campaign job %s was already submitted or is not sending", jobID))
	}

	return nil
}

// Finalize writes terminal status, stats and outcomes in one statement.
// Only a sending job can be finalized.
func (r *campaignJobRepository) Finalize(ctx context.Context, jobID string, fin models.JobFinalization) error {
	if !models.CanTransition(models.JobStatusSending, fin.Status) {
		return models.NewValidationError("status", fmt.Sprintf("%q is not a terminal status", fin.Status))
	}

	query := `
		UPDATE campaign_jobs
		SET status = $1,
			stats_total = $2, stats_sent = $3, stats_delivered = $4, stats_failed = $5,
			recipients = $6, error_reason = $7, sent_at = $8, updated_at = NOW()
		WHERE id = $9 AND status = 'sending'`

	result, err := r.db.ExecContext(ctx, query,
		fin.Status,
		fin.Stats.Total,
		fin.Stats.Sent,
		fin.Stats.Delivered,
		fin.Stats.Failed,
		fin.Outcomes,
		fin.ErrorReason,
		fin.SentAt,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize campaign job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrConflictWithMsg(fmt.Sprintf("campaign job %s is not sending", jobID))
	}

	return nil
}

// GetByID retrieves a job owned by companyID
func (r *campaignJobRepository) GetByID(ctx context.Context, companyID, jobID string) (*models.CampaignJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}

	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE id = $1 AND company_id = $2`

	job := &models.CampaignJob{}
	err := r.db.GetContext(ctx, job, query, jobID, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign job: %w", err)
	}

	return job, nil
}

// GetRecipients returns the ordered per-recipient outcomes of a job
func (r *campaignJobRepository) GetRecipients(ctx context.Context, companyID, jobID string) (models.RecipientOutcomes, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}

	query := `SELECT recipients FROM campaign_jobs WHERE id = $1 AND company_id = $2`

	var outcomes models.RecipientOutcomes
	err := r.db.QueryRowContext(ctx, query, jobID, companyID).Scan(&outcomes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign job recipients: %w", err)
	}

	return outcomes, nil
}

// List retrieves a company's jobs with pagination and filtering, newest first
func (r *campaignJobRepository) List(ctx context.Context, filter models.JobFilter) ([]*models.CampaignJob, int64, error) {
	page := models.NewPageRequest(filter.Page, filter.PageSize)

	where := ` WHERE company_id = $1`
	args := []interface{}{filter.CompanyID}
	argPos := 2

	if filter.Provider != "" {
		where += fmt.Sprintf(" AND provider = $%d", argPos)
		args = append(args, filter.Provider)
		argPos++
	}

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, `SELECT COUNT(*) FROM campaign_jobs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaign jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM campaign_jobs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, page.PageSize, page.Offset())

	jobs := []*models.CampaignJob{}
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list campaign jobs: %w", err)
	}

	return jobs, totalCount, nil
}

// ListStale returns sending jobs of any company last touched before the cutoff, oldest first
func (r *campaignJobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.CampaignJob, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs
		WHERE status = 'sending' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	jobs := []*models.CampaignJob{}
	if err := r.db.SelectContext(ctx, &jobs, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale campaign jobs: %w", err)
	}

	return jobs, nil
}

// Delete removes a job unless it is still sending
func (r *campaignJobRepository) Delete(ctx context.Context, companyID, jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}

	query := `DELETE FROM campaign_jobs WHERE id = $1 AND company_id = $2 AND status <> 'sending'`

	result, err := r.db.ExecContext(ctx, query, jobID, companyID)
	if err != nil {
		return fmt.Errorf("failed to delete campaign job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	// Nothing deleted: either absent or still sending
	var status models.JobStatus
	err = r.db.GetContext(ctx, &status,
		`SELECT status FROM campaign_jobs WHERE id = $1 AND company_id = $2`, jobID, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}
	if err != nil {
		return fmt.Errorf("failed to check campaign job status: %w", err)
	}

	return &models.JobInProgressError{JobID: jobID}
}
