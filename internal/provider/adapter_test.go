package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

func msgs(ids ...string) []Message {
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, Message{RecipientIdentity: id, Body: "hi"})
	}
	return out
}

func TestChunk(t *testing.T) {
	units := chunk(msgs("a", "b", "c", "d", "e"), 2)
	require.Len(t, units, 3)
	assert.Len(t, units[0], 2)
	assert.Len(t, units[2], 1)
	assert.Equal(t, "e", units[2][0].RecipientIdentity)

	assert.Len(t, chunk(nil, 10), 0)
	assert.Len(t, chunk(msgs("a", "b"), 0), 2)
}

func TestDeliverUnits_TransportErrorBeforeAcceptance(t *testing.T) {
	boom := errors.New("connection refused")
	res, err := deliverUnits(context.Background(), chunk(msgs("a", "b"), 1), &Result{},
		func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
			return nil, nil, boom
		})

	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}

func TestDeliverUnits_TransportErrorAfterAcceptance(t *testing.T) {
	calls := 0
	res, err := deliverUnits(context.Background(), chunk(msgs("a", "b", "c"), 1), &Result{},
		func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
			calls++
			if calls == 1 {
				return []Accepted{{Identity: unit[0].RecipientIdentity, ProviderMessageID: "m1"}}, nil, nil
			}
			return nil, nil, errors.New("connection reset")
		})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []Accepted{{Identity: "a", ProviderMessageID: "m1"}}, res.Accepted)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, "b", res.Rejected[0].Identity)
	assert.Equal(t, "c", res.Rejected[1].Identity)
	assert.Equal(t, "connection reset", res.Rejected[1].Reason)
}

func TestDeliverUnits_MessageRejectionContinues(t *testing.T) {
	res, err := deliverUnits(context.Background(), chunk(msgs("a", "b"), 1), &Result{},
		func(ctx context.Context, unit []Message) ([]Accepted, []Rejected, error) {
			if unit[0].RecipientIdentity == "a" {
				return nil, nil, &StatusError{Provider: models.ProviderBrevo, Code: 400, Body: "bad address"}
			}
			return []Accepted{{Identity: "b", ProviderMessageID: "m2"}}, nil, nil
		})

	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "a", res.Rejected[0].Identity)
	assert.Len(t, res.Accepted, 1)
}

func TestIsMessageRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &StatusError{Code: 400}, true},
		{"unprocessable", &StatusError{Code: 422}, true},
		{"unauthorized", &StatusError{Code: 401}, false},
		{"forbidden", &StatusError{Code: 403}, false},
		{"throttled", &StatusError{Code: 429}, false},
		{"server error", &StatusError{Code: 502}, false},
		{"explicit rejection", &MessageRejectedError{Reason: "no"}, true},
		{"network", errors.New("dial tcp"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMessageRejection(tt.err))
		})
	}
}

func TestRegistry(t *testing.T) {
	mock := NewMockAdapter(models.IdentityPhone, 1, 0, nopLogger())
	reg := NewRegistry(mock)

	got, err := reg.Get(models.ProviderMock)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderMock, got.Name())

	_, err = reg.Get(models.ProviderWATI)
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "provider", vErr.Field)

	assert.Equal(t, []models.Provider{models.ProviderMock}, reg.Names())
}
