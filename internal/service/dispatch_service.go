package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/metrics"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/provider"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/repository"
)

const (
	reasonNoProviderResponse = "no provider response"
	reasonMalformedRecipient = "malformed recipient"
)

// JobEventPublisher announces finalized jobs
type JobEventPublisher interface {
	PublishJobFinalized(ctx context.Context, job *models.CampaignJob) error
}

type discardEvents struct{}

func (discardEvents) PublishJobFinalized(context.Context, *models.CampaignJob) error { return nil }

// DispatchService runs the campaign dispatch pipeline
type DispatchService interface {
	CreateAndDispatch(ctx context.Context, req models.DispatchRequest) (*models.DispatchResult, error)
	Retry(ctx context.Context, companyID, actorID, jobID string) (*models.DispatchResult, error)
	ValidateRequest(ctx context.Context, req models.DispatchRequest) error
	PreviewRender(req *PreviewRequest) (*PreviewResult, error)
}

// DispatchConfig tunes the orchestrator
type DispatchConfig struct {
	SubmitTimeout        time.Duration
	RecordRenderedFields bool
	FinalizeAttempts     uint64
	PublishTimeout       time.Duration
}

// DispatchDeps groups the orchestrator's collaborators
type DispatchDeps struct {
	Jobs        repository.CampaignJobRepository
	Credentials repository.ProviderCredentialsRepository
	Resolver    RecipientResolver
	Templates   TemplateService
	Adapters    *provider.Registry
	Events      JobEventPublisher
	Metrics     *metrics.Metrics
}

type dispatchService struct {
	DispatchDeps
	cfg    DispatchConfig
	now    func() time.Time
	logger zerolog.Logger
}

// NewDispatchService creates a new dispatch orchestrator
func NewDispatchService(deps DispatchDeps, cfg DispatchConfig, logger zerolog.Logger) DispatchService {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 90 * time.Second
	}
	if cfg.FinalizeAttempts == 0 {
		cfg.FinalizeAttempts = 3
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}
	return &dispatchService{
		DispatchDeps: deps,
		cfg:          cfg,
		now:          time.Now,
		logger:       logger.With().Str("component", "dispatch").Logger(),
	}
}

// dispatchRun carries the state of one pass through the pipeline
type dispatchRun struct {
	req     models.DispatchRequest
	adapter provider.Adapter
	config  provider.Config

	resolution *Resolution
	job        *models.CampaignJob

	outcomes []models.RecipientOutcome
	messages []provider.Message
	// position of each submitted identity in outcomes
	index map[string]int

	result      *provider.Result
	providerErr error

	// set when the job record could not be marked submitted; nothing was sent
	trackErr error
}

// failure is the job-level error that fails every pending outcome
func (r *dispatchRun) failure() error {
	if r.trackErr != nil {
		return r.trackErr
	}
	return r.providerErr
}

func (r *dispatchRun) jobID() string {
	if r.job == nil {
		return ""
	}
	return r.job.ID
}

// CreateAndDispatch validates, resolves, renders, submits and finalizes one campaign job.
//
// A ValidationError or a cancellation before submission returns with no job record
// written. Once the job exists it always reaches a terminal status. The result is
// returned alongside NoRecipientsError and ProviderUnavailableError.
func (s *dispatchService) CreateAndDispatch(ctx context.Context, req models.DispatchRequest) (*models.DispatchResult, error) {
	run := &dispatchRun{req: req}

	stage := models.StageValidating
	for stage != models.StageDone {
		next, err := s.step(ctx, stage, run)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("job_id", run.jobID()).
				Str("company_id", req.CompanyID).
				Str("provider", string(req.Provider)).
				Str("stage", stage.String()).
				Msg("dispatch aborted")
			return nil, err
		}

		s.logger.Debug().
			Str("job_id", run.jobID()).
			Str("company_id", req.CompanyID).
			Str("provider", string(req.Provider)).
			Str("from", stage.String()).
			Str("to", next.String()).
			Msg("dispatch stage")
		stage = next
	}

	return s.report(run)
}

func (s *dispatchService) step(ctx context.Context, stage models.DispatchStage, run *dispatchRun) (models.DispatchStage, error) {
	switch stage {
	case models.StageValidating:
		return s.validate(ctx, run)
	case models.StageResolving:
		return s.resolve(ctx, run)
	case models.StageRendering:
		return s.render(ctx, run)
	case models.StageSubmitting:
		return s.submit(ctx, run)
	case models.StageFinalizing:
		return s.finalize(ctx, run)
	default:
		return models.StageDone, fmt.Errorf("unknown dispatch stage %d", stage)
	}
}

// ValidateRequest runs the validation stage only. Used before enqueueing.
func (s *dispatchService) ValidateRequest(ctx context.Context, req models.DispatchRequest) error {
	_, err := s.validate(ctx, &dispatchRun{req: req})
	return err
}

func (s *dispatchService) validate(ctx context.Context, run *dispatchRun) (models.DispatchStage, error) {
	req := run.req

	if req.CompanyID == "" {
		return models.StageValidating, models.NewValidationError("company_id", "is required")
	}
	if err := requestFromDispatch(req).Validate(); err != nil {
		return models.StageValidating, err
	}
	if err := s.Templates.ValidateMappings(req.TemplateMappings); err != nil {
		return models.StageValidating, err
	}

	adapter, err := s.Adapters.Get(req.Provider)
	if err != nil {
		return models.StageValidating, err
	}

	creds, err := s.Credentials.Get(ctx, req.CompanyID, req.Provider)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return models.StageValidating, fmt.Errorf("failed to load %s credentials: %w", req.Provider, err)
		}
		creds = &models.ProviderCredentials{CompanyID: req.CompanyID, Provider: req.Provider}
	}

	sender := strings.TrimSpace(req.SenderIdentity)
	if sender == "" {
		sender = creds.SenderIdentity
	}
	cfg := provider.Config{
		APIKey:      creds.APIKey,
		Sender:      sender,
		MessageType: req.MessageType,
		Settings:    creds.Settings.Merge(req.ProviderSettings),
	}
	if err := adapter.ValidateConfig(cfg); err != nil {
		return models.StageValidating, err
	}

	run.adapter = adapter
	run.config = cfg
	return models.StageResolving, nil
}

func (s *dispatchService) resolve(ctx context.Context, run *dispatchRun) (models.DispatchStage, error) {
	if err := ctx.Err(); err != nil {
		return models.StageResolving, err
	}

	res, err := s.Resolver.Resolve(ctx, run.req.CompanyID, run.req.ListIDs, run.adapter.IdentityKind())
	if err != nil {
		return models.StageResolving, err
	}
	run.resolution = res

	if len(res.Recipients) > 0 {
		return models.StageRendering, nil
	}

	// Nothing to send: record the attempt and close it as failed
	if err := s.createJob(ctx, run); err != nil {
		return models.StageResolving, err
	}
	return models.StageFinalizing, nil
}

func (s *dispatchService) render(ctx context.Context, run *dispatchRun) (models.DispatchStage, error) {
	req := run.req
	recipients := run.resolution.Recipients

	subject := req.Subject
	if strings.TrimSpace(subject) == "" {
		subject = req.Name
	}

	run.outcomes = make([]models.RecipientOutcome, len(recipients))
	run.messages = make([]provider.Message, 0, len(recipients))
	run.index = make(map[string]int, len(recipients))

	for i, r := range recipients {
		if r.Contact == nil || r.IdentityKey == "" {
			run.outcomes[i] = models.RecipientOutcome{
				Identity:    r.IdentityKey,
				Status:      models.OutcomeFailed,
				ErrorReason: reasonMalformedRecipient,
			}
			continue
		}
		if _, dup := run.index[r.IdentityKey]; dup {
			run.outcomes[i] = models.RecipientOutcome{
				Identity:    r.IdentityKey,
				ContactID:   r.Contact.ID,
				Status:      models.OutcomeFailed,
				ErrorReason: reasonMalformedRecipient,
			}
			continue
		}

		body, fields := s.Templates.RenderFields(req.MessageTemplate, req.TemplateMappings, r.Contact)
		renderedSubject := s.Templates.Render(subject, req.TemplateMappings, r.Contact)

		outcome := models.RecipientOutcome{
			Identity:  r.IdentityKey,
			ContactID: r.Contact.ID,
			Status:    models.OutcomePending,
		}
		if s.cfg.RecordRenderedFields && len(fields) > 0 {
			outcome.RenderedFields = fields
		}
		run.outcomes[i] = outcome
		run.index[r.IdentityKey] = i

		run.messages = append(run.messages, provider.Message{
			RecipientIdentity: r.IdentityKey,
			Body:              body,
			Subject:           renderedSubject,
			TemplateRef:       run.config.Setting("template_ref"),
			Fields:            fields,
		})
	}

	return models.StageSubmitting, nil
}

// submit creates the job record and hands the batch to the adapter.
// From here on the caller's cancellation no longer applies.
func (s *dispatchService) submit(ctx context.Context, run *dispatchRun) (models.DispatchStage, error) {
	if err := ctx.Err(); err != nil {
		return models.StageSubmitting, err
	}

	detached := context.WithoutCancel(ctx)
	if err := s.createJob(detached, run); err != nil {
		return models.StageSubmitting, err
	}

	if err := s.Jobs.MarkSubmitted(detached, run.job.ID, s.now()); err != nil {
		s.logger.Error().Err(err).Str("job_id", run.job.ID).Msg("failed to mark job submitted")
		run.trackErr = fmt.Errorf("failed to mark job submitted: %w", err)
		return models.StageFinalizing, nil
	}

	if len(run.messages) == 0 {
		return models.StageFinalizing, nil
	}

	sendCtx, cancel := context.WithTimeout(detached, s.cfg.SubmitTimeout)
	defer cancel()

	started := s.now()
	result, err := run.adapter.Send(sendCtx, provider.Batch{
		JobID:    run.job.ID,
		Messages: run.messages,
		Config:   run.config,
	})
	s.Metrics.ObserveSubmit(string(run.req.Provider), s.now().Sub(started), err)

	if err != nil {
		run.providerErr = &models.ProviderUnavailableError{Provider: run.req.Provider, Err: err}
		return models.StageFinalizing, nil
	}
	if result == nil {
		result = &provider.Result{}
	}
	run.result = result
	return models.StageFinalizing, nil
}

func (s *dispatchService) finalize(ctx context.Context, run *dispatchRun) (models.DispatchStage, error) {
	detached := context.WithoutCancel(ctx)
	log := s.logger.With().
		Str("job_id", run.job.ID).
		Str("company_id", run.job.CompanyID).
		Str("provider", string(run.job.Provider)).
		Logger()

	var errorReason *string
	switch {
	case run.failure() != nil:
		reason := run.failure().Error()
		errorReason = &reason
		for i := range run.outcomes {
			if run.outcomes[i].Status == models.OutcomePending {
				run.outcomes[i].Status = models.OutcomeFailed
				run.outcomes[i].ErrorReason = reason
			}
		}
	case run.result != nil:
		s.applyResult(run, log)
	}

	for i := range run.outcomes {
		if run.outcomes[i].Status == models.OutcomePending {
			run.outcomes[i].Status = models.OutcomeFailed
			run.outcomes[i].ErrorReason = reasonNoProviderResponse
		}
	}

	stats := models.ComputeStats(run.outcomes)
	status := models.DeriveStatus(stats.Total, stats.Sent)
	if stats.Total == 0 && errorReason == nil {
		reason := (&models.NoRecipientsError{ListIDs: run.req.ListIDs}).Error()
		errorReason = &reason
	}

	fin := models.JobFinalization{
		Status:      status,
		Stats:       stats,
		Outcomes:    run.outcomes,
		ErrorReason: errorReason,
	}
	if stats.Total > 0 {
		sentAt := s.now()
		fin.SentAt = &sentAt
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.FinalizeAttempts-1),
		detached,
	)
	err := backoff.Retry(func() error {
		err := s.Jobs.Finalize(detached, run.job.ID, fin)
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		log.Error().
			Err(err).
			Bool("stuck_sending", true).
			Str("intended_status", string(status)).
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Msg("failed to finalize job, record left sending until failed by campaignctl jobs fail-stale")
		return models.StageFinalizing, fmt.Errorf("failed to finalize job %s: %w", run.job.ID, err)
	}

	run.job.Status = status
	run.job.JobStats = stats
	run.job.ErrorReason = errorReason
	run.job.SentAt = fin.SentAt

	s.Metrics.ObserveJob(string(run.job.Provider), string(status), stats.Sent, stats.Failed, run.job.DuplicatesRemoved)

	publishCtx, cancel := context.WithTimeout(detached, s.cfg.PublishTimeout)
	if err := s.Events.PublishJobFinalized(publishCtx, run.job); err != nil {
		log.Warn().Err(err).Msg("failed to publish job event")
	}
	cancel()

	log.Info().
		Str("status", string(status)).
		Int("total", stats.Total).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Msg("campaign job finalized")

	return models.StageDone, nil
}

// applyResult folds the adapter's accepted and rejected lists into the outcomes
func (s *dispatchService) applyResult(run *dispatchRun, log zerolog.Logger) {
	for _, a := range run.result.Accepted {
		i, ok := run.index[a.Identity]
		if !ok {
			log.Warn().Str("identity", a.Identity).Msg("provider accepted unknown recipient")
			continue
		}
		run.outcomes[i].Status = models.OutcomeSent
		run.outcomes[i].ProviderMessageID = a.ProviderMessageID
		run.outcomes[i].ErrorReason = ""
	}
	for _, r := range run.result.Rejected {
		i, ok := run.index[r.Identity]
		if !ok {
			log.Warn().Str("identity", r.Identity).Msg("provider rejected unknown recipient")
			continue
		}
		if run.outcomes[i].Status == models.OutcomeSent {
			continue
		}
		run.outcomes[i].Status = models.OutcomeFailed
		run.outcomes[i].ErrorReason = r.Reason
	}
}

func (s *dispatchService) createJob(ctx context.Context, run *dispatchRun) error {
	req := run.req

	var retryOf *string
	if req.RetryOf != "" {
		id := req.RetryOf
		retryOf = &id
	}

	job := &models.CampaignJob{
		CompanyID:         req.CompanyID,
		Name:              strings.TrimSpace(req.Name),
		Provider:          req.Provider,
		MessageType:       req.MessageType,
		MessageTemplate:   req.MessageTemplate,
		Subject:           req.Subject,
		TemplateMappings:  req.TemplateMappings,
		ListIDs:           req.ListIDs,
		ProviderSettings:  req.ProviderSettings,
		SenderIdentity:    run.config.Sender,
		Status:            models.JobStatusSending,
		DuplicatesRemoved: run.resolution.DuplicatesRemoved,
		SkippedNoIdentity: run.resolution.SkippedNoIdentity,
		RetryOf:           retryOf,
		CreatedBy:         req.ActorID,
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create campaign job: %w", err)
	}

	run.job = job
	s.logger.Info().
		Str("job_id", job.ID).
		Str("company_id", job.CompanyID).
		Str("provider", string(job.Provider)).
		Int("recipients", len(run.resolution.Recipients)).
		Int("duplicates_removed", job.DuplicatesRemoved).
		Msg("campaign job created")
	return nil
}

func (s *dispatchService) report(run *dispatchRun) (*models.DispatchResult, error) {
	job := run.job
	result := &models.DispatchResult{
		JobID:             job.ID,
		Status:            job.Status,
		Stats:             job.JobStats,
		DuplicatesRemoved: job.DuplicatesRemoved,
		SkippedNoIdentity: job.SkippedNoIdentity,
		Lists:             run.resolution.Lists,
	}
	if job.ErrorReason != nil {
		result.ErrorReason = *job.ErrorReason
	}

	switch {
	case len(run.resolution.Recipients) == 0:
		return result, &models.NoRecipientsError{JobID: job.ID, ListIDs: run.req.ListIDs}
	case run.trackErr != nil:
		return result, run.trackErr
	case run.providerErr != nil:
		var unavailable *models.ProviderUnavailableError
		if errors.As(run.providerErr, &unavailable) {
			return result, unavailable
		}
		return result, &models.ProviderUnavailableError{Provider: run.req.Provider, Err: run.providerErr}
	}
	return result, nil
}

// Retry dispatches a previous job's content again as a new job.
// The source job must not be sending.
func (s *dispatchService) Retry(ctx context.Context, companyID, actorID, jobID string) (*models.DispatchResult, error) {
	source, err := s.Jobs.GetByID(ctx, companyID, jobID)
	if err != nil {
		return nil, err
	}
	if source.Status == models.JobStatusSending {
		return nil, &models.JobInProgressError{JobID: jobID}
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("company_id", companyID).
		Str("provider", string(source.Provider)).
		Msg("retrying campaign job")

	return s.CreateAndDispatch(ctx, models.DispatchRequest{
		CompanyID:        companyID,
		ActorID:          actorID,
		Name:             source.Name,
		Provider:         source.Provider,
		MessageType:      source.MessageType,
		MessageTemplate:  source.MessageTemplate,
		Subject:          source.Subject,
		TemplateMappings: source.TemplateMappings,
		ListIDs:          source.ListIDs,
		ProviderSettings: source.ProviderSettings,
		SenderIdentity:   source.SenderIdentity,
		RetryOf:          source.ID,
	})
}

// PreviewRender renders a template for a sample contact with no side effects
func (s *dispatchService) PreviewRender(req *PreviewRequest) (*PreviewResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	contact := req.SampleContact
	if contact == nil {
		contact = &models.ContactRecord{}
	}
	return s.Templates.Preview(req.MessageTemplate, req.TemplateMappings, contact), nil
}
