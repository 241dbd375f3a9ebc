package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"runwayiq/models"
)

// CallJob asks a worker to dial one queued calling lead
type CallJob struct {
	ID          string    `json:"id"`
	QueueItemID uint      `json:"queue_item_id"`
	CampaignID  uint      `json:"campaign_id"`
	LeadID      uint      `json:"lead_id"`
	UserID      uint      `json:"user_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func NewCallJob(item models.CallQueueItem) CallJob {
	return CallJob{
		ID:          uuid.NewString(),
		QueueItemID: item.ID,
		CampaignID:  item.CampaignID,
		LeadID:      item.LeadID,
		UserID:      item.UserID,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Publisher hands call jobs to whatever transport backs the call queue
type Publisher interface {
	PublishCall(ctx context.Context, job CallJob) error
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch       publishChannel
	Exchange string
}

func NewProducer(r *RabbitMQ) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: r.Ch, Exchange: r.Topology.Exchange}
}

func (p *RabbitMQProducer) PublishCall(ctx context.Context, job CallJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode call job: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		p.Exchange,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    job.ID,
			Timestamp:    job.EnqueuedAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish call job: %w", err)
	}
	return nil
}
