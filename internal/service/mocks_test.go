package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/provider"
)

// mockJobRepository keeps jobs and their outcomes in memory
type mockJobRepository struct {
	mu       sync.Mutex
	jobs     map[string]*models.CampaignJob
	outcomes map[string]models.RecipientOutcomes
	order    []string

	createErr      error
	markErr        error
	finalizeErrs   []error
	finalizeCalls  int
	submittedCalls int
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		jobs:     make(map[string]*models.CampaignJob),
		outcomes: make(map[string]models.RecipientOutcomes),
	}
}

func (m *mockJobRepository) Create(ctx context.Context, job *models.CampaignJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	job.ID = uuid.NewString()
	job.SchemaVersion = models.CurrentJobSchemaVersion
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt

	stored := *job
	m.jobs[job.ID] = &stored
	m.order = append(m.order, job.ID)
	return nil
}

func (m *mockJobRepository) MarkSubmitted(ctx context.Context, jobID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submittedCalls++
	if m.markErr != nil {
		return m.markErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return models.ErrNotFoundWithMsg("campaign job not found")
	}
	if job.SubmittedAt != nil {
		return models.ErrConflictWithMsg("campaign job already submitted")
	}
	job.SubmittedAt = &at
	return nil
}

func (m *mockJobRepository) Finalize(ctx context.Context, jobID string, fin models.JobFinalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finalizeCalls++
	if len(m.finalizeErrs) > 0 {
		err := m.finalizeErrs[0]
		m.finalizeErrs = m.finalizeErrs[1:]
		if err != nil {
			return err
		}
	}

	job, ok := m.jobs[jobID]
	if !ok {
		return models.ErrNotFoundWithMsg("campaign job not found")
	}
	if !models.CanTransition(job.Status, fin.Status) {
		return models.ErrConflictWithMsg(fmt.Sprintf("campaign job %s is %s", jobID, job.Status))
	}
	job.Status = fin.Status
	job.JobStats = fin.Stats
	job.ErrorReason = fin.ErrorReason
	job.SentAt = fin.SentAt
	m.outcomes[jobID] = append(models.RecipientOutcomes(nil), fin.Outcomes...)
	return nil
}

func (m *mockJobRepository) GetByID(ctx context.Context, companyID, jobID string) (*models.CampaignJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.CompanyID != companyID {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}
	out := *job
	return &out, nil
}

func (m *mockJobRepository) GetRecipients(ctx context.Context, companyID, jobID string) (models.RecipientOutcomes, error) {
	if _, err := m.GetByID(ctx, companyID, jobID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(models.RecipientOutcomes{}, m.outcomes[jobID]...), nil
}

func (m *mockJobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.CampaignJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stale := []*models.CampaignJob{}
	for _, id := range m.order {
		job, ok := m.jobs[id]
		if !ok || job.Status != models.JobStatusSending || !job.UpdatedAt.Before(before) {
			continue
		}
		out := *job
		stale = append(stale, &out)
		if len(stale) == limit {
			break
		}
	}
	return stale, nil
}

func (m *mockJobRepository) List(ctx context.Context, filter models.JobFilter) ([]*models.CampaignJob, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := []*models.CampaignJob{}
	for _, id := range m.order {
		job, ok := m.jobs[id]
		if !ok || job.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Provider != "" && job.Provider != filter.Provider {
			continue
		}
		out := *job
		filtered = append(filtered, &out)
	}

	start, end := models.NewPageRequest(filter.Page, filter.PageSize).Window(len(filtered))
	return filtered[start:end], int64(len(filtered)), nil
}

func (m *mockJobRepository) Delete(ctx context.Context, companyID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.CompanyID != companyID {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("campaign job %s not found", jobID))
	}
	if !job.CanBeDeleted() {
		return &models.JobInProgressError{JobID: jobID}
	}
	delete(m.jobs, jobID)
	delete(m.outcomes, jobID)
	return nil
}

func (m *mockJobRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// put stores a job as is, bypassing Create
func (m *mockJobRepository) put(job *models.CampaignJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
}

// mockListRepository serves lists and contacts from memory
type mockListRepository struct {
	mu       sync.Mutex
	lists    map[string]*models.RecipientList
	contacts map[string][]*models.ContactRecord
	readErr  map[string]error
}

func newMockListRepository() *mockListRepository {
	return &mockListRepository{
		lists:    make(map[string]*models.RecipientList),
		contacts: make(map[string][]*models.ContactRecord),
		readErr:  make(map[string]error),
	}
}

func (m *mockListRepository) addList(companyID, listID string, contacts ...*models.ContactRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contacts {
		c.ListID = listID
	}
	m.lists[listID] = &models.RecipientList{
		ID:             listID,
		Name:           "list " + listID,
		OwnerCompanyID: companyID,
		ContactCount:   len(contacts),
	}
	m.contacts[listID] = contacts
}

func (m *mockListRepository) GetListMetadata(ctx context.Context, listID string) (*models.RecipientList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[listID]
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("contact list %s not found", listID))
	}
	out := *list
	return &out, nil
}

func (m *mockListRepository) GetContactsInList(ctx context.Context, listID string) ([]*models.ContactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr[listID]; err != nil {
		return nil, err
	}
	return append([]*models.ContactRecord(nil), m.contacts[listID]...), nil
}

func (m *mockListRepository) ListByCompany(ctx context.Context, companyID string) ([]*models.RecipientList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.RecipientList{}
	for _, l := range m.lists {
		if l.OwnerCompanyID == companyID {
			copied := *l
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockListRepository) CreateList(ctx context.Context, list *models.RecipientList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.lists[list.ID]; ok && existing.OwnerCompanyID != list.OwnerCompanyID {
		return models.ErrConflictWithMsg(fmt.Sprintf("contact list %s belongs to another company", list.ID))
	}
	stored := *list
	if existing, ok := m.lists[list.ID]; ok {
		stored.ContactCount = existing.ContactCount
	}
	m.lists[list.ID] = &stored
	list.ContactCount = stored.ContactCount
	return nil
}

func (m *mockListRepository) UpsertContacts(ctx context.Context, listID string, contacts []*models.ContactRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.contacts[listID]
	for _, c := range contacts {
		replaced := false
		for i, e := range existing {
			if e.ID == c.ID {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
	}
	m.contacts[listID] = existing
	m.lists[listID].ContactCount = len(existing)
	return len(existing), nil
}

// mockCredentialsRepository holds credentials keyed by company and provider
type mockCredentialsRepository struct {
	creds map[string]*models.ProviderCredentials
	err   error
}

func newMockCredentialsRepository(creds ...*models.ProviderCredentials) *mockCredentialsRepository {
	m := &mockCredentialsRepository{creds: make(map[string]*models.ProviderCredentials)}
	for _, c := range creds {
		m.creds[c.CompanyID+"/"+string(c.Provider)] = c
	}
	return m
}

func (m *mockCredentialsRepository) Get(ctx context.Context, companyID string, p models.Provider) (*models.ProviderCredentials, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.creds[companyID+"/"+string(p)]
	if !ok {
		return nil, models.ErrNotFoundWithMsg("credentials not found")
	}
	out := *c
	return &out, nil
}

func (m *mockCredentialsRepository) Upsert(ctx context.Context, creds *models.ProviderCredentials) error {
	m.creds[creds.CompanyID+"/"+string(creds.Provider)] = creds
	return nil
}

// fakeAdapter records batches and answers with sendFn
type fakeAdapter struct {
	name     models.Provider
	kind     models.IdentityKind
	validate func(cfg provider.Config) error
	sendFn   func(ctx context.Context, batch provider.Batch) (*provider.Result, error)

	mu      sync.Mutex
	batches []provider.Batch
}

func (a *fakeAdapter) Name() models.Provider             { return a.name }
func (a *fakeAdapter) IdentityKind() models.IdentityKind { return a.kind }

func (a *fakeAdapter) ValidateConfig(cfg provider.Config) error {
	if a.validate != nil {
		return a.validate(cfg)
	}
	return nil
}

func (a *fakeAdapter) Send(ctx context.Context, batch provider.Batch) (*provider.Result, error) {
	a.mu.Lock()
	a.batches = append(a.batches, batch)
	a.mu.Unlock()

	if a.sendFn != nil {
		return a.sendFn(ctx, batch)
	}
	return acceptAll(batch), nil
}

func (a *fakeAdapter) sent() []provider.Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]provider.Batch(nil), a.batches...)
}

func acceptAll(batch provider.Batch) *provider.Result {
	res := &provider.Result{}
	for i, m := range batch.Messages {
		res.Accepted = append(res.Accepted, provider.Accepted{
			Identity:          m.RecipientIdentity,
			ProviderMessageID: fmt.Sprintf("%s-%d", batch.JobID, i),
		})
	}
	return res
}

// recordingPublisher captures finalized jobs
type recordingPublisher struct {
	mu   sync.Mutex
	jobs []models.CampaignJob
	err  error
}

func (p *recordingPublisher) PublishJobFinalized(ctx context.Context, job *models.CampaignJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, *job)
	return p.err
}

func phoneContact(id, phone string) *models.ContactRecord {
	return &models.ContactRecord{ID: id, Phone: phone, Fields: models.ContactFields{}}
}
