// Package queue carries start requests to the workers and status updates to
// listeners over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

const (
	DefaultQueue    = "briefs"
	DefaultExchange = "brief_updates"
)

// Channel is the part of *amqp.Channel the publisher and consumer use.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Dialer opens a fresh channel. Channels are not shared between goroutines.
type Dialer func() (Channel, error)

// ConnDialer opens channels on an established connection.
func ConnDialer(conn *amqp.Connection) Dialer {
	return func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// StartRequest is the body of one message on the start queue.
type StartRequest struct {
	BriefID uuid.UUID `json:"brief_id"`
}

type Publisher struct {
	dial     Dialer
	queue    string
	exchange string
	logger   *zap.Logger
}

func NewPublisher(dial Dialer, queue, exchange string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Publisher{dial: dial, queue: queue, exchange: exchange, logger: logger.OrNop(log)}
}

// Launch enqueues one pipeline execution for briefID.
func (p *Publisher) Launch(_ context.Context, briefID uuid.UUID) error {
	ch, err := p.dial()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := declareQueue(ch, p.queue); err != nil {
		return err
	}
	body, err := json.Marshal(StartRequest{BriefID: briefID})
	if err != nil {
		return err
	}
	if err := ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish start request: %w", err)
	}
	p.logger.Info("start request queued", zap.String("brief_id", briefID.String()), zap.String("queue", p.queue))
	return nil
}

// PublishUpdate sends update to the topic exchange under brief.<id>.
func (p *Publisher) PublishUpdate(_ context.Context, update domain.StatusUpdate) error {
	ch, err := p.dial()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return ch.Publish(p.exchange, RoutingKey(update.BriefID), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func RoutingKey(briefID uuid.UUID) string {
	return "brief." + briefID.String()
}

func declareQueue(ch Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}
