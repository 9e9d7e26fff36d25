package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/metrics"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/queue"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

// JobHandler handles campaign job HTTP requests
type JobHandler struct {
	dispatch service.DispatchService
	jobs     service.JobService
	queue    queue.Client
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewJobHandler creates a new job handler. queueClient may be nil, which disables async dispatch.
func NewJobHandler(dispatch service.DispatchService, jobs service.JobService, queueClient queue.Client, m *metrics.Metrics, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		dispatch: dispatch,
		jobs:     jobs,
		queue:    queueClient,
		metrics:  m,
		logger:   logger.With().Str("component", "job_handler").Logger(),
	}
}

func principal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
	}
	return p, ok
}

// CreateJob handles POST /campaign-jobs. The job is dispatched before the response is written.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req service.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	result, err := h.dispatch.CreateAndDispatch(r.Context(), req.ToDispatchRequest(p.CompanyID, p.ActorID))
	if err != nil {
		handleErrorWithResult(w, err, result, h.logger)
		return
	}

	respondCreated(w, result)
}

// EnqueueJob handles POST /campaign-jobs/queue. The request is validated, then queued for a worker.
func (h *JobHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if h.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "async dispatch is not configured")
		return
	}

	var req service.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	dispatchReq := req.ToDispatchRequest(p.CompanyID, p.ActorID)
	if err := h.dispatch.ValidateRequest(r.Context(), dispatchReq); err != nil {
		handleError(w, err, h.logger)
		return
	}

	job := &models.DispatchJob{
		RequestID:  uuid.NewString(),
		Request:    dispatchReq,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.queue.Publish(r.Context(), job); err != nil {
		handleError(w, err, h.logger)
		return
	}
	h.metrics.ObserveQueued()

	respondJSON(w, http.StatusAccepted, service.QueuedDispatchResult{RequestID: job.RequestID, Status: "queued"})
}

// ListJobs handles GET /campaign-jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	result, err := h.jobs.ListJobs(r.Context(), models.JobFilter{
		CompanyID: p.CompanyID,
		Provider:  models.Provider(query.Get("provider")),
		Status:    models.JobStatus(query.Get("status")),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// GetJob handles GET /campaign-jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), p.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, job)
}

// GetRecipients handles GET /campaign-jobs/{id}/recipients
func (h *JobHandler) GetRecipients(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	result, err := h.jobs.GetRecipientOutcomes(r.Context(), p.CompanyID, chi.URLParam(r, "id"), models.OutcomeFilter{
		Status:   models.OutcomeStatus(query.Get("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// DeleteJob handles DELETE /campaign-jobs/{id}
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.jobs.DeleteJob(r.Context(), p.CompanyID, chi.URLParam(r, "id")); err != nil {
		handleError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryJob handles POST /campaign-jobs/{id}/retry
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	result, err := h.dispatch.Retry(r.Context(), p.CompanyID, p.ActorID, chi.URLParam(r, "id"))
	if err != nil {
		handleErrorWithResult(w, err, result, h.logger)
		return
	}

	respondCreated(w, result)
}

// Preview handles POST /preview
func (h *JobHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req service.PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	result, err := h.dispatch.PreviewRender(&req)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}
