package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// CurrentJobSchemaVersion is stamped on every new job record
const CurrentJobSchemaVersion = 1

// JobStatus is the lifecycle state of a campaign job
type JobStatus string

// Job status constants
const (
	JobStatusDraft           JobStatus = "draft"
	JobStatusSending         JobStatus = "sending"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusPartiallyFailed JobStatus = "partially_failed"
	JobStatusFailed          JobStatus = "failed"
)

// IsValidJobStatus checks if the job status is valid
func IsValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusDraft, JobStatusSending, JobStatusCompleted, JobStatusPartiallyFailed, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusPartiallyFailed || s == JobStatusFailed
}

// CanTransition reports whether from -> to is allowed.
// Terminal states are only reachable from sending.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case "":
		return to == JobStatusDraft || to == JobStatusSending
	case JobStatusDraft:
		return to == JobStatusSending
	case JobStatusSending:
		return to.IsTerminal()
	default:
		return false
	}
}

// DeriveStatus computes the terminal status from the recipient totals
func DeriveStatus(total, sent int) JobStatus {
	switch {
	case total == 0 || sent == 0:
		return JobStatusFailed
	case sent < total:
		return JobStatusPartiallyFailed
	default:
		return JobStatusCompleted
	}
}

// OutcomeStatus is the per-recipient send status
type OutcomeStatus string

// Outcome status constants
const (
	OutcomePending OutcomeStatus = "pending"
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeFailed  OutcomeStatus = "failed"
)

// RecipientOutcome is the recorded result for one recipient
type RecipientOutcome struct {
	Identity          string            `json:"identity"`
	ContactID         string            `json:"contact_id,omitempty"`
	RenderedFields    map[string]string `json:"rendered_fields,omitempty"`
	Status            OutcomeStatus     `json:"status"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	ErrorReason       string            `json:"error_reason,omitempty"`
}

// RecipientOutcomes is stored on the job record as a single JSONB document
type RecipientOutcomes []RecipientOutcome

// Value implements driver.Valuer
func (o RecipientOutcomes) Value() (driver.Value, error) {
	if o == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Scan implements sql.Scanner
func (o *RecipientOutcomes) Scan(src interface{}) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*o = RecipientOutcomes{}
		return nil
	}
	return json.Unmarshal(data, o)
}

// JobStats holds aggregate counters, set once at finalize
type JobStats struct {
	Total     int `db:"stats_total" json:"total"`
	Sent      int `db:"stats_sent" json:"sent"`
	Delivered int `db:"stats_delivered" json:"delivered"`
	Failed    int `db:"stats_failed" json:"failed"`
}

// ComputeStats counts outcomes. Delivered is unknown at send time.
func ComputeStats(outcomes []RecipientOutcome) JobStats {
	stats := JobStats{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeSent:
			stats.Sent++
		default:
			stats.Failed++
		}
	}
	return stats
}

// CampaignJob is one durable dispatch attempt
type CampaignJob struct {
	ID                string           `db:"id" json:"id"`
	SchemaVersion     int              `db:"schema_version" json:"schema_version"`
	CompanyID         string           `db:"company_id" json:"company_id"`
	Name              string           `db:"name" json:"name"`
	Provider          Provider         `db:"provider" json:"provider"`
	MessageType       string           `db:"message_type" json:"message_type,omitempty"`
	MessageTemplate   string           `db:"message_template" json:"message_template"`
	Subject           string           `db:"subject" json:"subject,omitempty"`
	TemplateMappings  TemplateMappings `db:"template_mappings" json:"template_mappings"`
	ListIDs           pq.StringArray   `db:"list_ids" json:"list_ids"`
	ProviderSettings  Settings         `db:"provider_settings" json:"provider_settings,omitempty"`
	SenderIdentity    string           `db:"sender_identity" json:"sender_identity,omitempty"`
	Status            JobStatus        `db:"status" json:"status"`
	JobStats                           `json:"stats"`
	DuplicatesRemoved int              `db:"duplicates_removed" json:"duplicates_removed"`
	SkippedNoIdentity int              `db:"skipped_no_identity" json:"skipped_no_identity"`
	ErrorReason       *string          `db:"error_reason" json:"error_reason,omitempty"`
	RetryOf           *string          `db:"retry_of" json:"retry_of,omitempty"`
	CreatedBy         string           `db:"created_by" json:"created_by"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	SubmittedAt       *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	SentAt            *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// CanBeDeleted reports whether the job may be removed by a user
func (j *CampaignJob) CanBeDeleted() bool {
	return j.Status != JobStatusSending
}

// Validate performs validation on job data before it is persisted
func (j *CampaignJob) Validate() error {
	if j.CompanyID == "" {
		return NewValidationError("company_id", "is required")
	}
	if j.Name == "" {
		return NewValidationError("name", "is required")
	}
	if !IsValidProvider(j.Provider) {
		return NewValidationError("provider", fmt.Sprintf("unsupported provider %q", j.Provider))
	}
	if j.Status != "" && !IsValidJobStatus(j.Status) {
		return NewValidationError("status", fmt.Sprintf("invalid status %q", j.Status))
	}
	return nil
}

// JobFinalization is the single write that closes a job
type JobFinalization struct {
	Status      JobStatus
	Stats       JobStats
	Outcomes    RecipientOutcomes
	ErrorReason *string
	SentAt      *time.Time
}

// JobFilter holds filtering options for listing jobs
type JobFilter struct {
	CompanyID string
	Provider  Provider
	Status    JobStatus
	Page      int
	PageSize  int
}

// OutcomeFilter narrows a job's recipient outcomes
type OutcomeFilter struct {
	Status   OutcomeStatus
	Page     int
	PageSize int
}
