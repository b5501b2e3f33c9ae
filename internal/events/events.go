// Package events publishes order lifecycle events to a message broker for
// downstream consumers (fulfilment, notifications, analytics). Publishing
// is best effort: it happens after the store transaction commits and a
// broker failure is logged, never surfaced to the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys on the order events exchange.
const (
	KeyOrderCreated   = "order.created"
	KeyOrderPaid      = "order.paid"
	KeyOrderCancelled = "order.cancelled"
)

// OrderEvent is the payload published for every order lifecycle event.
type OrderEvent struct {
	OrderNumber   string    `json:"order_number"`
	UserID        string    `json:"user_id"`
	TotalAmount   string    `json:"total_amount"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher fans out order lifecycle events. Implementations log their
// own failures; callers fire and forget.
type Publisher interface {
	OrderCreated(ctx context.Context, evt OrderEvent)
	OrderPaid(ctx context.Context, evt OrderEvent)
	OrderCancelled(ctx context.Context, evt OrderEvent)
	Close() error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) OrderCreated(context.Context, OrderEvent)   {}
func (Nop) OrderPaid(context.Context, OrderEvent)      {}
func (Nop) OrderCancelled(context.Context, OrderEvent) {}
func (Nop) Close() error                               { return nil }

// AMQPPublisher publishes events to a durable topic exchange on RabbitMQ.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	lg       *zap.Logger
}

// NewAMQPPublisher dials the broker and declares the topic exchange.
func NewAMQPPublisher(url, exchange string, lg *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, lg: lg}, nil
}

func (p *AMQPPublisher) OrderCreated(ctx context.Context, evt OrderEvent) {
	p.publish(ctx, KeyOrderCreated, evt)
}

func (p *AMQPPublisher) OrderPaid(ctx context.Context, evt OrderEvent) {
	p.publish(ctx, KeyOrderPaid, evt)
}

func (p *AMQPPublisher) OrderCancelled(ctx context.Context, evt OrderEvent) {
	p.publish(ctx, KeyOrderCancelled, evt)
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, evt OrderEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.lg.Error("marshal order event", zap.String("key", key), zap.Error(err))
		return
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.lg.Error("publish order event",
			zap.String("key", key),
			zap.String("order_number", evt.OrderNumber),
			zap.Error(err),
		)
		return
	}

	p.lg.Debug("order event published",
		zap.String("key", key),
		zap.String("order_number", evt.OrderNumber),
	)
}

// Close shuts the channel and connection down.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
