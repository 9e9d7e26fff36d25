package queue

import (
	"context"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// Client defines the interface for dispatch queue operations
type Client interface {
	// Publish sends a dispatch job to the queue
	Publish(ctx context.Context, job *models.DispatchJob) error

	// Consume receives jobs and runs handler on up to concurrency of them at once.
	// It returns after in-flight jobs finish once ctx is done.
	Consume(ctx context.Context, handler JobHandler, concurrency int) error

	// QueueLength returns the number of waiting jobs
	QueueLength(ctx context.Context) (int64, error)

	Close() error
	Health(ctx context.Context) error
}

// JobHandler processes one dispatch job
type JobHandler func(ctx context.Context, job *models.DispatchJob) error
