package models

import "time"

// DispatchStage is a step of the dispatch pipeline
type DispatchStage int

// Pipeline stages, in execution order
const (
	StageValidating DispatchStage = iota
	StageResolving
	StageRendering
	StageSubmitting
	StageFinalizing
	StageDone
)

func (s DispatchStage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageResolving:
		return "resolving"
	case StageRendering:
		return "rendering"
	case StageSubmitting:
		return "submitting"
	case StageFinalizing:
		return "finalizing"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// DispatchRequest is the complete input of one dispatch attempt
type DispatchRequest struct {
	CompanyID        string            `json:"company_id"`
	ActorID          string            `json:"actor_id"`
	Name             string            `json:"name"`
	Provider         Provider          `json:"provider"`
	MessageType      string            `json:"message_type,omitempty"`
	MessageTemplate  string            `json:"message_template"`
	Subject          string            `json:"subject,omitempty"`
	TemplateMappings []TemplateMapping `json:"template_mappings"`
	ListIDs          []string          `json:"list_ids"`
	ProviderSettings Settings          `json:"provider_settings,omitempty"`
	SenderIdentity   string            `json:"sender_identity,omitempty"`
	RetryOf          string            `json:"retry_of,omitempty"`
}

// DispatchResult is what a completed dispatch reports back
type DispatchResult struct {
	JobID             string        `json:"job_id"`
	Status            JobStatus     `json:"status"`
	Stats             JobStats      `json:"stats"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	SkippedNoIdentity int           `json:"skipped_no_identity"`
	Lists             []ListSummary `json:"lists,omitempty"`
	ErrorReason       string        `json:"error_reason,omitempty"`
}

// DispatchJob is the queue payload for asynchronous dispatch
type DispatchJob struct {
	RequestID  string          `json:"request_id"`
	Request    DispatchRequest `json:"request"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
