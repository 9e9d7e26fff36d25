package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

type fakeChannel struct {
	exchange  string
	key       string
	published []amqp.Publishing
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange = exchange
	c.key = key
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *AMQPPublisher {
	return &AMQPPublisher{
		open:     func() (channel, error) { return ch, nil },
		close:    func() error { return nil },
		exchange: "campaign.events",
		now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		logger:   zerolog.Nop(),
	}
}

func finalizedJob() *models.CampaignJob {
	reason := "provider msg91 unavailable: timeout"
	return &models.CampaignJob{
		ID:          "job-1",
		CompanyID:   "co-1",
		Name:        "Diwali",
		Provider:    models.ProviderMSG91,
		Status:      models.JobStatusFailed,
		JobStats:    models.JobStats{Total: 3, Failed: 3},
		ErrorReason: &reason,
	}
}

func TestPublishJobFinalized(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	require.NoError(t, p.PublishJobFinalized(context.Background(), finalizedJob()))

	require.Len(t, ch.published, 1)
	assert.True(t, ch.closed)
	assert.Equal(t, "campaign.events", ch.exchange)
	assert.Equal(t, TypeJobFinalized, ch.key)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "job-1", msg.CorrelationId)
	assert.NotEmpty(t, msg.MessageId)

	var decoded struct {
		Meta Meta         `json:"meta"`
		Data JobFinalized `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, TypeJobFinalized, decoded.Meta.Type)
	assert.Equal(t, "job-1", decoded.Data.JobID)
	assert.Equal(t, models.JobStatusFailed, decoded.Data.Status)
	assert.Equal(t, 3, decoded.Data.Stats.Failed)
	assert.Equal(t, "provider msg91 unavailable: timeout", decoded.Data.ErrorReason)
}

func TestPublishJobFinalized_ChannelError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newTestPublisher(ch)

	err := p.PublishJobFinalized(context.Background(), finalizedJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
	assert.True(t, ch.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishJobFinalized(context.Background(), finalizedJob()))
	assert.NoError(t, p.Close())
}
