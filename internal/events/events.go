package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// TypeJobFinalized is emitted once per job after its terminal write
const TypeJobFinalized = "campaign_job.finalized.v1"

const producer = "campaign-dispatch"

// Meta identifies one emitted event
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope wraps every event on the bus
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// JobFinalized is the payload of TypeJobFinalized
type JobFinalized struct {
	JobID             string           `json:"job_id"`
	CompanyID         string           `json:"company_id"`
	Name              string           `json:"name"`
	Provider          models.Provider  `json:"provider"`
	Status            models.JobStatus `json:"status"`
	Stats             models.JobStats  `json:"stats"`
	DuplicatesRemoved int              `json:"duplicates_removed"`
	ErrorReason       string           `json:"error_reason,omitempty"`
	RetryOf           string           `json:"retry_of,omitempty"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
}

// NewJobFinalized builds the envelope for a finalized job. The job ID doubles as correlation ID.
func NewJobFinalized(job *models.CampaignJob, now time.Time) Envelope {
	data := JobFinalized{
		JobID:             job.ID,
		CompanyID:         job.CompanyID,
		Name:              job.Name,
		Provider:          job.Provider,
		Status:            job.Status,
		Stats:             job.JobStats,
		DuplicatesRemoved: job.DuplicatesRemoved,
		SentAt:            job.SentAt,
	}
	if job.ErrorReason != nil {
		data.ErrorReason = *job.ErrorReason
	}
	if job.RetryOf != nil {
		data.RetryOf = *job.RetryOf
	}

	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: job.ID,
			Producer:      producer,
			Time:          now.UTC(),
			Type:          TypeJobFinalized,
		},
		Data: data,
	}
}
