package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrRequeue asks the consumer to put the job back on the work queue
var ErrRequeue = errors.New("requeue call job")

// Handler processes one job. nil acks, ErrRequeue requeues, anything else dead-letters.
type Handler func(ctx context.Context, job CallJob) error

type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type Consumer struct {
	Ch       consumeChannel
	Queue    string
	Prefetch int
	Logger   *logrus.Entry
}

func NewConsumer(r *RabbitMQ, logger *logrus.Entry) *Consumer {
	return &Consumer{Ch: r.Ch, Queue: r.Topology.Queue, Prefetch: 1, Logger: logger}
}

// Consume blocks until ctx is cancelled or the delivery channel closes
func (c *Consumer) Consume(ctx context.Context, handle Handler) error {
	if c.Prefetch > 0 {
		if err := c.Ch.Qos(c.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	msgs, err := c.Ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.Logger.WithField("queue", c.Queue).Info("Call queue consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, d, handle)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle Handler) {
	var job CallJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.Logger.WithError(err).Warn("Dropping malformed call job")
		_ = d.Nack(false, false)
		return
	}

	log := c.Logger.WithFields(logrus.Fields{"job_id": job.ID, "queue_item_id": job.QueueItemID})
	err := handle(ctx, job)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrRequeue):
		log.WithError(err).Info("Requeueing call job")
		_ = d.Nack(false, true)
	default:
		log.WithError(err).Warn("Dead-lettering call job")
		_ = d.Nack(false, false)
	}
}
