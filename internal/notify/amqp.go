package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fatali-fataliyev/envelope_budget/internal/budget"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/fatali-fataliyev/envelope_budget/logging"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher sends budget events to a topic exchange, routed by event type.
type AMQPPublisher struct {
	conn         *amqp091.Connection
	exchangeName string

	mu      sync.Mutex
	channel channel
}

func NewAMQPPublisher(url, exchangeName string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logging.Logger.Infof("publishing budget events to AMQP exchange %s", exchangeName)
	return &AMQPPublisher{conn: conn, exchangeName: exchangeName, channel: ch}, nil
}

func encodeEvent(event budget.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event budget.Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	msg.CorrelationId = contextutil.TraceIDFromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp091 channels must not be shared by concurrent publishers.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchangeName,     // exchange
		string(event.Type), // routing key
		false,              // mandatory
		false,              // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	logging.Logger.Debugf("[TraceID=%s] | published %s event %s", msg.CorrelationId, event.Type, event.ID)
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
