package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// MockAdapter simulates a provider for development, accepting roughly
// successRate of recipients after a short delay per message.
type MockAdapter struct {
	kind        models.IdentityKind
	successRate float64
	delay       time.Duration

	mu  sync.Mutex
	rnd *rand.Rand

	logger zerolog.Logger
}

// NewMockAdapter creates a mock sender
// successRate: probability of success (0.0 to 1.0), default 0.92 (92%)
func NewMockAdapter(kind models.IdentityKind, successRate float64, delay time.Duration, logger zerolog.Logger) *MockAdapter {
	if successRate <= 0 || successRate > 1.0 {
		successRate = 0.92
	}
	if kind == "" {
		kind = models.IdentityPhone
	}
	return &MockAdapter{
		kind:        kind,
		successRate: successRate,
		delay:       delay,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger.With().Str("provider", string(models.ProviderMock)).Logger(),
	}
}

func (a *MockAdapter) Name() models.Provider             { return models.ProviderMock }
func (a *MockAdapter) IdentityKind() models.IdentityKind { return a.kind }
func (a *MockAdapter) ValidateConfig(cfg Config) error   { return nil }

// Send simulates a submission
func (a *MockAdapter) Send(ctx context.Context, batch Batch) (*Result, error) {
	res := &Result{}
	for i, m := range batch.Messages {
		if a.delay > 0 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				return failRemaining(res, [][]Message{batch.Messages[i:]}, ctx.Err())
			}
		}

		if a.roll() > a.successRate {
			res.Rejected = append(res.Rejected, Rejected{Identity: m.RecipientIdentity, Reason: "mock sender: simulated rejection"})
			continue
		}
		res.Accepted = append(res.Accepted, Accepted{
			Identity:          m.RecipientIdentity,
			ProviderMessageID: fmt.Sprintf("mock-%s", uuid.NewString()),
		})
	}

	a.logger.Debug().
		Str("job_id", batch.JobID).
		Int("accepted", len(res.Accepted)).
		Int("rejected", len(res.Rejected)).
		Msg("mock submission done")
	return res, nil
}

func (a *MockAdapter) roll() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rnd.Float64()
}
