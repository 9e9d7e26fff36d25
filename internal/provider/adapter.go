// Package provider holds the delivery adapters behind one send contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// Message is one rendered send unit
type Message struct {
	RecipientIdentity string
	Body              string
	Subject           string
	TemplateRef       string
	// Fields holds the rendered placeholder values, for template-based providers
	Fields map[string]string
}

// Config carries a company's credentials and provider-specific settings
type Config struct {
	APIKey      string
	Sender      string
	MessageType string
	Settings    models.Settings
}

// Setting returns a settings value or ""
func (c Config) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	return c.Settings[key]
}

// Batch is the full rendered submission of one job
type Batch struct {
	// JobID doubles as the idempotency key
	JobID    string
	Messages []Message
	Config   Config
}

// Accepted is a message the provider took responsibility for
type Accepted struct {
	Identity          string
	ProviderMessageID string
}

// Rejected is a message the provider (or local validation) refused
type Rejected struct {
	Identity string
	Reason   string
}

// Result splits a batch into accepted and rejected recipients
type Result struct {
	Accepted []Accepted
	Rejected []Rejected
}

// Adapter is implemented by every delivery provider.
//
// Send returns an error only for provider-level failures (network, auth,
// timeout, open circuit) before any message was accepted. Per-recipient
// problems are reported in Result.Rejected.
type Adapter interface {
	Name() models.Provider
	IdentityKind() models.IdentityKind
	ValidateConfig(cfg Config) error
	Send(ctx context.Context, batch Batch) (*Result, error)
}

// Registry selects adapters by provider name
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for p or a validation error naming the provider field
func (r *Registry) Get(p models.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[p]
	if !ok {
		return nil, models.NewValidationError("provider", fmt.Sprintf("provider %q is not available", p))
	}
	return a, nil
}

// Names lists registered providers in sorted order
func (r *Registry) Names() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]models.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// unitSender submits one request worth of messages
type unitSender func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error)

// deliverUnits submits units in order and folds their outcomes into res.
// A message-level error rejects the unit; a transport error after some acceptance
// rejects everything not yet submitted, and before any acceptance is returned as is.
func deliverUnits(ctx context.Context, units [][]Message, res *Result, send unitSender) (*Result, error) {
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return failRemaining(res, units[i:], err)
		}

		accepted, rejected, err := send(ctx, unit)
		if err == nil {
			res.Accepted = append(res.Accepted, accepted...)
			res.Rejected = append(res.Rejected, rejected...)
			continue
		}

		if IsMessageRejection(err) {
			for _, m := range unit {
				res.Rejected = append(res.Rejected, Rejected{Identity: m.RecipientIdentity, Reason: err.Error()})
			}
			continue
		}

		return failRemaining(res, units[i:], err)
	}
	return res, nil
}

func failRemaining(res *Result, remaining [][]Message, err error) (*Result, error) {
	if len(res.Accepted) == 0 {
		return nil, err
	}
	for _, unit := range remaining {
		for _, m := range unit {
			res.Rejected = append(res.Rejected, Rejected{Identity: m.RecipientIdentity, Reason: err.Error()})
		}
	}
	return res, nil
}

// partitionValid rejects locally-invalid identities without a network call
func partitionValid(msgs []Message, valid func(string) bool, reason string) ([]Message, *Result) {
	res := &Result{}
	ok := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !valid(m.RecipientIdentity) {
			res.Rejected = append(res.Rejected, Rejected{Identity: m.RecipientIdentity, Reason: reason})
			continue
		}
		ok = append(ok, m)
	}
	return ok, res
}

// acceptUnreadable accepts a unit the provider took without a readable receipt,
// keyed by job and recipient in place of a provider id
func acceptUnreadable(jobID string, unit []Message) []Accepted {
	accepted := make([]Accepted, 0, len(unit))
	for _, m := range unit {
		accepted = append(accepted, Accepted{Identity: m.RecipientIdentity, ProviderMessageID: jobID + ":" + m.RecipientIdentity})
	}
	return accepted
}

// chunk splits msgs into consecutive slices of at most size
func chunk(msgs []Message, size int) [][]Message {
	if size < 1 {
		size = 1
	}
	out := make([][]Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		out = append(out, msgs[start:end])
	}
	return out
}

// MessageRejectedError is a refusal scoped to the messages of one request
type MessageRejectedError struct {
	Reason string
}

func (e *MessageRejectedError) Error() string {
	return e.Reason
}

// IsMessageRejection reports whether err refuses messages rather than the provider
func IsMessageRejection(err error) bool {
	var rejected *MessageRejectedError
	if errors.As(err, &rejected) {
		return true
	}
	var status *StatusError
	return errors.As(err, &status) && status.messageScoped()
}

func requireField(value, field string) error {
	if value == "" {
		return models.NewValidationError(field, "is required")
	}
	return nil
}
