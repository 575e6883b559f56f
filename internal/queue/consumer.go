package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

var errEmptyBriefID = errors.New("start request has no brief id")

// Handler runs the pipeline for one brief.
type Handler interface {
	Run(ctx context.Context, briefID uuid.UUID) error
}

type HandlerFunc func(ctx context.Context, briefID uuid.UUID) error

func (f HandlerFunc) Run(ctx context.Context, briefID uuid.UUID) error {
	return f(ctx, briefID)
}

type Consumer struct {
	dial    Dialer
	queue   string
	handler Handler
	logger  *zap.Logger
}

func NewConsumer(dial Dialer, queue string, handler Handler, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Consumer{dial: dial, queue: queue, handler: handler, logger: logger.OrNop(log)}
}

// StartWorkerPool runs n workers, each with its own channel, and blocks until
// every worker has stopped. Workers stop when ctx is done or the broker
// closes their delivery channel.
func (c *Consumer) StartWorkerPool(ctx context.Context, n int) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(n)
	for i := range n {
		go func(id int) {
			defer wg.Done()
			c.logger.Info("worker started", zap.Int("worker", id))
			if err := c.work(ctx, id); err != nil {
				c.logger.Error("worker stopped", zap.Int("worker", id), zap.Error(err))
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i + 1)
	}
	wg.Wait()
	return firstErr
}

func (c *Consumer) work(ctx context.Context, id int) error {
	ch, err := c.dial()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := declareQueue(ch, c.queue); err != nil {
		return err
	}
	// one unacked delivery per worker; the rest stay on the queue
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				if err := msg.Nack(false, true); err != nil {
					c.logger.Warn("requeue failed", zap.Int("worker", id), zap.Error(err))
				}
				return nil
			}
			c.Handle(ctx, id, msg)
		}
	}
}

// Handle decodes one delivery, runs the pipeline for it and acks it once the
// run has finished either way. Messages that do not name a brief are rejected
// without requeue.
func (c *Consumer) Handle(ctx context.Context, worker int, msg amqp.Delivery) {
	briefID, err := DecodeStartRequest(msg.Body)
	if err != nil {
		c.logger.Error("dropping start request", zap.Int("worker", worker), zap.Error(err))
		if err := msg.Reject(false); err != nil {
			c.logger.Warn("reject failed", zap.Int("worker", worker), zap.Error(err))
		}
		return
	}

	log := c.logger.With(zap.Int("worker", worker), zap.String("brief_id", briefID.String()))
	log.Info("processing brief")
	if err := c.handler.Run(ctx, briefID); err != nil {
		log.Error("brief failed", zap.Error(err))
	} else {
		log.Info("brief processed")
	}
	if err := msg.Ack(false); err != nil {
		log.Warn("ack failed", zap.Error(err))
	}
}

func DecodeStartRequest(body []byte) (uuid.UUID, error) {
	var req StartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uuid.Nil, fmt.Errorf("decode start request: %w", err)
	}
	if req.BriefID == uuid.Nil {
		return uuid.Nil, errEmptyBriefID
	}
	return req.BriefID, nil
}
