package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/metrics"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/provider"
)

var errStoreDown = errors.New("connection reset by peer")

type dispatchFixture struct {
	jobs     *mockJobRepository
	lists    *mockListRepository
	creds    *mockCredentialsRepository
	adapter  *fakeAdapter
	events   *recordingPublisher
	metrics  *metrics.Metrics
	resolver RecipientResolver
	svc      DispatchService
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	f := &dispatchFixture{
		jobs:    newMockJobRepository(),
		lists:   newMockListRepository(),
		creds:   newMockCredentialsRepository(),
		adapter: &fakeAdapter{name: models.ProviderMSG91, kind: models.IdentityPhone},
		events:  &recordingPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.resolver = NewRecipientResolver(f.lists, ResolverConfig{DefaultCountryCode: "91"}, zerolog.Nop())
	f.build()
	return f
}

func (f *dispatchFixture) build() {
	f.svc = NewDispatchService(DispatchDeps{
		Jobs:        f.jobs,
		Credentials: f.creds,
		Resolver:    f.resolver,
		Templates:   NewTemplateService(),
		Adapters:    provider.NewRegistry(f.adapter),
		Events:      f.events,
		Metrics:     f.metrics,
	}, DispatchConfig{
		SubmitTimeout:        time.Second,
		RecordRenderedFields: true,
	}, zerolog.Nop())
}

func (f *dispatchFixture) seedLists() {
	f.lists.addList("co-1", "list-a",
		&models.ContactRecord{ID: "1", Phone: "+91 98765-43210", Fields: models.ContactFields{"first_name": "Asha"}},
		&models.ContactRecord{ID: "2", Phone: "9876543210", Fields: models.ContactFields{"first_name": "Dup"}},
		&models.ContactRecord{ID: "3", Phone: "9123456789", Fields: models.ContactFields{"first_name": "Ravi"}},
	)
	f.lists.addList("co-1", "list-b",
		&models.ContactRecord{ID: "4", Phone: "919876543210"},
		&models.ContactRecord{ID: "5", Phone: "09000000001", Fields: models.ContactFields{"first_name": "Meera"}},
	)
}

func validRequest() models.DispatchRequest {
	return models.DispatchRequest{
		CompanyID:       "co-1",
		ActorID:         "user-1",
		Name:            "Diwali offers",
		Provider:        models.ProviderMSG91,
		MessageTemplate: "Hi {name}, use code {code}",
		TemplateMappings: []models.TemplateMapping{
			{PlaceholderName: "name", MappingType: models.MappingContactField, MappingValue: "first_name"},
			{PlaceholderName: "code", MappingType: models.MappingStaticValue, MappingValue: "FEST10"},
		},
		ListIDs: []string{"list-a", "list-b"},
	}
}

func (f *dispatchFixture) outcomes(t *testing.T, jobID string) models.RecipientOutcomes {
	t.Helper()
	out, err := f.jobs.GetRecipients(context.Background(), "co-1", jobID)
	require.NoError(t, err)
	return out
}

func TestDispatch_ValidationFailureWritesNoRecord(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.DispatchRequest)
		field  string
	}{
		{"empty name", func(r *models.DispatchRequest) { r.Name = "  " }, "name"},
		{"empty body", func(r *models.DispatchRequest) { r.MessageTemplate = "" }, "message_template"},
		{"no lists", func(r *models.DispatchRequest) { r.ListIDs = nil }, "list_ids"},
		{"no provider", func(r *models.DispatchRequest) { r.Provider = "" }, "provider"},
		{"unregistered provider", func(r *models.DispatchRequest) { r.Provider = models.ProviderBrevo }, "provider"},
		{"missing company", func(r *models.DispatchRequest) { r.CompanyID = "" }, "company_id"},
		{"duplicate mapping", func(r *models.DispatchRequest) {
			r.TemplateMappings = append(r.TemplateMappings, r.TemplateMappings[0])
		}, "template_mappings[2].placeholder_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)
			f.seedLists()

			req := validRequest()
			tt.mutate(&req)

			result, err := f.svc.CreateAndDispatch(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, result)

			var vErr *models.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)

			assert.Equal(t, 0, f.jobs.count())
			assert.Empty(t, f.adapter.sent())
		})
	}
}

func TestDispatch_AdapterConfigValidation(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.adapter.validate = func(cfg provider.Config) error {
		if cfg.Setting("template_id") == "" {
			return models.NewValidationError("provider_config.template_id", "is required")
		}
		return nil
	}

	_, err := f.svc.CreateAndDispatch(context.Background(), validRequest())

	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "provider_config.template_id", vErr.Field)
	assert.Equal(t, 0, f.jobs.count())
}

func TestDispatch_CompletedJob(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, models.JobStats{Total: 3, Sent: 3, Delivered: 0, Failed: 0}, result.Stats)
	assert.Equal(t, 2, result.DuplicatesRemoved)
	require.Len(t, result.Lists, 2)

	job, err := f.jobs.GetByID(context.Background(), "co-1", result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "user-1", job.CreatedBy)
	assert.NotNil(t, job.SubmittedAt)
	assert.NotNil(t, job.SentAt)
	assert.Nil(t, job.ErrorReason)

	outcomes := f.outcomes(t, result.JobID)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "919876543210", outcomes[0].Identity)
	assert.Equal(t, "919123456789", outcomes[1].Identity)
	assert.Equal(t, "919000000001", outcomes[2].Identity)
	for _, o := range outcomes {
		assert.Equal(t, models.OutcomeSent, o.Status)
		assert.NotEmpty(t, o.ProviderMessageID)
	}
	assert.Equal(t, map[string]string{"name": "Asha", "code": "FEST10"}, outcomes[0].RenderedFields)

	batches := f.adapter.sent()
	require.Len(t, batches, 1, "adapter is called once with the whole batch")
	assert.Equal(t, result.JobID, batches[0].JobID)
	require.Len(t, batches[0].Messages, 3)
	assert.Equal(t, "Hi Asha, use code FEST10", batches[0].Messages[0].Body)
	assert.Equal(t, "Diwali offers", batches[0].Messages[0].Subject)

	require.Len(t, f.events.jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, f.events.jobs[0].Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JobsFinalized.WithLabelValues("msg91", "completed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.DuplicatesRemoved.WithLabelValues("msg91")))
}

func TestDispatch_PartialRejection(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.adapter.sendFn = func(ctx context.Context, batch provider.Batch) (*provider.Result, error) {
		return &provider.Result{
			Accepted: []provider.Accepted{{Identity: "919876543210", ProviderMessageID: "m-1"}},
			Rejected: []provider.Rejected{{Identity: "919123456789", Reason: "DND registered"}},
		}, nil
	}

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPartiallyFailed, result.Status)
	assert.Equal(t, models.JobStats{Total: 3, Sent: 1, Failed: 2}, result.Stats)

	outcomes := f.outcomes(t, result.JobID)
	assert.Equal(t, models.OutcomeSent, outcomes[0].Status)
	assert.Equal(t, "m-1", outcomes[0].ProviderMessageID)
	assert.Equal(t, models.OutcomeFailed, outcomes[1].Status)
	assert.Equal(t, "DND registered", outcomes[1].ErrorReason)
	assert.Equal(t, models.OutcomeFailed, outcomes[2].Status)
	assert.Equal(t, "no provider response", outcomes[2].ErrorReason)
}

func TestDispatch_ProviderOutageFinalizesFailed(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.adapter.sendFn = func(ctx context.Context, batch provider.Batch) (*provider.Result, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.Error(t, err)

	var unavailable *models.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, models.ProviderMSG91, unavailable.Provider)

	require.NotNil(t, result)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, models.JobStats{Total: 3, Failed: 3}, result.Stats)

	job, err := f.jobs.GetByID(context.Background(), "co-1", result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorReason)

	outcomes := f.outcomes(t, result.JobID)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, models.OutcomeFailed, o.Status)
		assert.Equal(t, *job.ErrorReason, o.ErrorReason)
	}
	assert.Contains(t, *job.ErrorReason, "connection refused")
	require.Len(t, f.events.jobs, 1)
}

func TestDispatch_NoRecipients(t *testing.T) {
	f := newDispatchFixture(t)
	f.lists.addList("co-1", "empty")

	req := validRequest()
	req.ListIDs = []string{"empty", "unknown"}

	result, err := f.svc.CreateAndDispatch(context.Background(), req)

	var noRecipients *models.NoRecipientsError
	require.ErrorAs(t, err, &noRecipients)
	require.NotEmpty(t, noRecipients.JobID)
	assert.Equal(t, []string{"empty", "unknown"}, noRecipients.ListIDs)

	require.NotNil(t, result)
	assert.Equal(t, noRecipients.JobID, result.JobID)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, models.JobStats{}, result.Stats)

	job, err := f.jobs.GetByID(context.Background(), "co-1", noRecipients.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Nil(t, job.SentAt)
	assert.Empty(t, f.adapter.sent())
	assert.Equal(t, 0, f.jobs.submittedCalls)
}

type resolverFunc func(ctx context.Context, companyID string, listIDs []string, kind models.IdentityKind) (*Resolution, error)

func (fn resolverFunc) Resolve(ctx context.Context, companyID string, listIDs []string, kind models.IdentityKind) (*Resolution, error) {
	return fn(ctx, companyID, listIDs, kind)
}

func TestDispatch_CancelBeforeSubmitWritesNoRecord(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()

	ctx, cancel := context.WithCancel(context.Background())
	inner := f.resolver
	f.resolver = resolverFunc(func(rctx context.Context, companyID string, listIDs []string, kind models.IdentityKind) (*Resolution, error) {
		res, err := inner.Resolve(rctx, companyID, listIDs, kind)
		cancel()
		return res, err
	})
	f.build()

	_, err := f.svc.CreateAndDispatch(ctx, validRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.jobs.count())
	assert.Empty(t, f.adapter.sent())
}

func TestDispatch_CancelDuringSubmitStillFinalizes(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sendCtxErr error
	f.adapter.sendFn = func(sctx context.Context, batch provider.Batch) (*provider.Result, error) {
		cancel()
		sendCtxErr = sctx.Err()
		return acceptAll(batch), nil
	}

	result, err := f.svc.CreateAndDispatch(ctx, validRequest())
	require.NoError(t, err)
	assert.NoError(t, sendCtxErr)
	assert.Equal(t, models.JobStatusCompleted, result.Status)

	job, err := f.jobs.GetByID(context.Background(), "co-1", result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestDispatch_SubmitTimeoutIsProviderFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.adapter.sendFn = func(ctx context.Context, batch provider.Batch) (*provider.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.svc = NewDispatchService(DispatchDeps{
		Jobs:        f.jobs,
		Credentials: f.creds,
		Resolver:    f.resolver,
		Templates:   NewTemplateService(),
		Adapters:    provider.NewRegistry(f.adapter),
	}, DispatchConfig{SubmitTimeout: 20 * time.Millisecond}, zerolog.Nop())

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())

	var unavailable *models.ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.JobStatusFailed, result.Status)
}

func TestDispatch_MergesStoredCredentials(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.creds = newMockCredentialsRepository(&models.ProviderCredentials{
		CompanyID:      "co-1",
		Provider:       models.ProviderMSG91,
		APIKey:         "secret",
		SenderIdentity: "SHOPIN",
		Settings:       models.Settings{"template_id": "stored", "route": "4"},
	})
	f.build()

	req := validRequest()
	req.ProviderSettings = models.Settings{"template_id": "override"}

	_, err := f.svc.CreateAndDispatch(context.Background(), req)
	require.NoError(t, err)

	batches := f.adapter.sent()
	require.Len(t, batches, 1)
	cfg := batches[0].Config
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "SHOPIN", cfg.Sender)
	assert.Equal(t, "override", cfg.Setting("template_id"))
	assert.Equal(t, "4", cfg.Setting("route"))
}

func TestDispatch_CredentialStoreErrorIsNotValidation(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.creds.err = errors.New("connection refused")

	_, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.Error(t, err)

	var vErr *models.ValidationError
	assert.False(t, errors.As(err, &vErr))
	assert.Equal(t, 0, f.jobs.count())
}

func TestDispatch_RendersSubjectTemplate(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()

	req := validRequest()
	req.Subject = "Offer for {name}"

	_, err := f.svc.CreateAndDispatch(context.Background(), req)
	require.NoError(t, err)

	batches := f.adapter.sent()
	require.Len(t, batches, 1)
	assert.Equal(t, "Offer for Asha", batches[0].Messages[0].Subject)
	assert.Equal(t, "Offer for Ravi", batches[0].Messages[1].Subject)
}

func TestDispatch_FinalizeIsRetried(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.jobs.finalizeErrs = []error{errors.New("deadlock detected")}

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, f.jobs.finalizeCalls)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
}

func TestDispatch_SubmitTrackingFailureIsNotProviderFailure(t *testing.T) {
	tests := []struct {
		name    string
		markErr error
		target  error
	}{
		{"conflict", models.ErrConflictWithMsg("campaign job was already submitted or is not sending"), models.ErrConflict},
		{"store error", errStoreDown, errStoreDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)
			f.seedLists()
			f.jobs.markErr = tt.markErr

			result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			var unavailable *models.ProviderUnavailableError
			assert.False(t, errors.As(err, &unavailable))

			require.NotNil(t, result)
			assert.Equal(t, models.JobStatusFailed, result.Status)
			assert.Empty(t, f.adapter.sent())
		})
	}
}

func TestDispatch_FinalizeExhaustedIsLoggedAndRecoverable(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.jobs.finalizeErrs = []error{errStoreDown, errStoreDown, errStoreDown}

	var logs bytes.Buffer
	f.svc = NewDispatchService(DispatchDeps{
		Jobs:        f.jobs,
		Credentials: f.creds,
		Resolver:    f.resolver,
		Templates:   NewTemplateService(),
		Adapters:    provider.NewRegistry(f.adapter),
		Metrics:     f.metrics,
	}, DispatchConfig{SubmitTimeout: time.Second}, zerolog.New(&logs))

	_, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 3, f.jobs.finalizeCalls)
	assert.Contains(t, logs.String(), `"stuck_sending":true`)

	jobs, err := f.jobs.ListStale(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, logs.String(), `"job_id":"`+jobs[0].ID+`"`)

	ids, err := NewJobService(f.jobs, zerolog.Nop()).FailStale(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{jobs[0].ID}, ids)

	job, err := f.jobs.GetByID(context.Background(), "co-1", jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

// stallingPublisher blocks until its context ends
type stallingPublisher struct {
	ctxErr error
}

func (p *stallingPublisher) PublishJobFinalized(ctx context.Context, job *models.CampaignJob) error {
	<-ctx.Done()
	p.ctxErr = ctx.Err()
	return p.ctxErr
}

func TestDispatch_EventPublishIsBounded(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	events := &stallingPublisher{}
	f.svc = NewDispatchService(DispatchDeps{
		Jobs:        f.jobs,
		Credentials: f.creds,
		Resolver:    f.resolver,
		Templates:   NewTemplateService(),
		Adapters:    provider.NewRegistry(f.adapter),
		Events:      events,
		Metrics:     f.metrics,
	}, DispatchConfig{SubmitTimeout: time.Second, PublishTimeout: 20 * time.Millisecond}, zerolog.Nop())

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.ErrorIs(t, events.ctxErr, context.DeadlineExceeded)
}

func TestDispatch_EventFailureDoesNotFailDispatch(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	f.events.err = errors.New("broker down")

	result, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
}

func TestDispatch_Retry(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedLists()
	calls := 0
	f.adapter.sendFn = func(ctx context.Context, batch provider.Batch) (*provider.Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		return acceptAll(batch), nil
	}

	first, err := f.svc.CreateAndDispatch(context.Background(), validRequest())
	require.Error(t, err)
	require.Equal(t, models.JobStatusFailed, first.Status)

	second, err := f.svc.Retry(context.Background(), "co-1", "user-2", first.JobID)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Equal(t, models.JobStatusCompleted, second.Status)

	retried, err := f.jobs.GetByID(context.Background(), "co-1", second.JobID)
	require.NoError(t, err)
	require.NotNil(t, retried.RetryOf)
	assert.Equal(t, first.JobID, *retried.RetryOf)
	assert.Equal(t, "user-2", retried.CreatedBy)

	original, err := f.jobs.GetByID(context.Background(), "co-1", first.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, original.Status, "source job is kept for audit")
}

func TestDispatch_RetryRejectsSendingJob(t *testing.T) {
	f := newDispatchFixture(t)
	f.jobs.put(&models.CampaignJob{ID: "job-sending", CompanyID: "co-1", Status: models.JobStatusSending})

	_, err := f.svc.Retry(context.Background(), "co-1", "user-1", "job-sending")

	var inProgress *models.JobInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, "job-sending", inProgress.JobID)
	assert.Equal(t, 1, f.jobs.count())
}

func TestDispatch_RetryUnknownJob(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.svc.Retry(context.Background(), "co-1", "user-1", "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDispatch_ValidateRequest(t *testing.T) {
	f := newDispatchFixture(t)

	assert.NoError(t, f.svc.ValidateRequest(context.Background(), validRequest()))

	req := validRequest()
	req.Name = ""
	var vErr *models.ValidationError
	assert.ErrorAs(t, f.svc.ValidateRequest(context.Background(), req), &vErr)
	assert.Equal(t, 0, f.jobs.count())
}

func TestDispatch_PreviewRender(t *testing.T) {
	f := newDispatchFixture(t)

	out, err := f.svc.PreviewRender(&PreviewRequest{
		MessageTemplate: "Hi {name}, {missing}",
		TemplateMappings: []models.TemplateMapping{
			{PlaceholderName: "name", MappingType: models.MappingContactField, MappingValue: "first_name"},
		},
		SampleContact: &models.ContactRecord{Fields: models.ContactFields{"first_name": "Asha"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Asha, [missing]", out.Rendered)
	assert.Equal(t, []string{"missing"}, out.Unmapped)

	out, err = f.svc.PreviewRender(&PreviewRequest{MessageTemplate: "Hello {name}"})
	require.NoError(t, err)
	assert.Equal(t, "Hello [name]", out.Rendered)
	assert.Equal(t, 0, f.jobs.count())
}
