package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func moveEvent() budget.Event {
	return budget.Event{
		ID:            "evt-1",
		Type:          budget.EventMoneyMoved,
		OwnerID:       "alice",
		CategoryID:    "dining",
		DestinationID: "savings",
		Month:         budget.NewMonth(2024, time.January),
		Amount:        2500,
		Mode:          budget.MoveSurplus,
		OccurredAt:    time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestPublishRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{exchangeName: "budget.events", channel: ch}
	ctx := contextutil.WithTraceID(context.Background(), "trace-1")

	require.NoError(t, p.Publish(ctx, moveEvent()))
	require.Len(t, ch.sent, 1)

	sent := ch.sent[0]
	assert.Equal(t, "budget.events", sent.exchange)
	assert.Equal(t, "money.moved", sent.key)
	assert.Equal(t, "application/json", sent.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, sent.msg.DeliveryMode)
	assert.Equal(t, "evt-1", sent.msg.MessageId)
	assert.Equal(t, "trace-1", sent.msg.CorrelationId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(sent.msg.Body, &body))
	assert.Equal(t, "2024-01", body["month"])
	assert.Equal(t, float64(2500), body["amount"])
	assert.Equal(t, "surplus", body["mode"])
	assert.Equal(t, "savings", body["destination_id"])
}

func TestPublishError(t *testing.T) {
	p := &AMQPPublisher{exchangeName: "budget.events", channel: &fakeChannel{err: errors.New("channel closed")}}
	err := p.Publish(context.Background(), moveEvent())
	assert.ErrorContains(t, err, "channel closed")
}

func TestLogPublisher(t *testing.T) {
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), moveEvent()))
}
