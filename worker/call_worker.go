package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"runwayiq/models"
	"runwayiq/queue"
)

// CallProcessor is the part of calling.Service the worker drives
type CallProcessor interface {
	NextPending(ctx context.Context) (*models.CallQueueItem, error)
	ProcessQueueItem(ctx context.Context, itemID uint) error
	HandleJob(ctx context.Context, job queue.CallJob) error
}

type JobConsumer interface {
	Consume(ctx context.Context, handle queue.Handler) error
}

// CallQueueWorker dials queued calling leads. With a Consumer it handles
// jobs from RabbitMQ, otherwise it polls the call queue table.
type CallQueueWorker struct {
	Calls      CallProcessor
	Consumer   JobConsumer
	Interval   time.Duration
	RetryDelay time.Duration
	BatchSize  int
	Logger     *logrus.Entry
}

func NewCallQueueWorker(calls CallProcessor, consumer JobConsumer, logger *logrus.Entry) *CallQueueWorker {
	return &CallQueueWorker{
		Calls:      calls,
		Consumer:   consumer,
		Interval:   15 * time.Second,
		RetryDelay: 30 * time.Second,
		BatchSize:  10,
		Logger:     logger,
	}
}

// Start blocks until ctx is cancelled
func (w *CallQueueWorker) Start(ctx context.Context) error {
	if w.Consumer != nil {
		w.Logger.Info("Call queue worker consuming from RabbitMQ")
		err := w.Consumer.Consume(ctx, w.handle)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	w.Logger.WithField("interval", w.Interval).Info("Call queue worker polling database")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Stopping call queue worker...")
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// handle holds a requeued job back for RetryDelay so a failing number is not redialed at once
func (w *CallQueueWorker) handle(ctx context.Context, job queue.CallJob) error {
	err := w.Calls.HandleJob(ctx, job)
	if !errors.Is(err, queue.ErrRequeue) {
		return err
	}

	timer := time.NewTimer(w.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return err
}

// drain dials up to BatchSize due items
func (w *CallQueueWorker) drain(ctx context.Context) int {
	processed := 0
	for processed < w.BatchSize {
		if ctx.Err() != nil {
			return processed
		}
		item, err := w.Calls.NextPending(ctx)
		if err != nil {
			w.Logger.WithError(err).Error("Failed to fetch next queue item")
			return processed
		}
		if item == nil {
			return processed
		}

		processed++
		if err := w.Calls.ProcessQueueItem(ctx, item.ID); err != nil {
			log := w.Logger.WithError(err).WithField("queue_item_id", item.ID)
			if errors.Is(err, queue.ErrRequeue) {
				log.Info("Call will be retried")
			} else {
				log.Warn("Failed to process queue item")
			}
		}
	}
	return processed
}
