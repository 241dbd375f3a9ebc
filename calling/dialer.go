package calling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/config"
	"runwayiq/models"
	"runwayiq/queue"
	"runwayiq/utils"
)

const retryBackoff = 30 * time.Second

// NextPending returns the highest priority queue item that is due, or nil
func (s *Service) NextPending(ctx context.Context) (*models.CallQueueItem, error) {
	var item models.CallQueueItem
	err := s.DB.WithContext(ctx).
		Joins("JOIN calling_campaigns ON calling_campaigns.id = call_queue_items.campaign_id AND calling_campaigns.deleted_at IS NULL").
		Where("call_queue_items.status IN ? AND call_queue_items.scheduled_at <= ?", openQueueStatuses, s.now()).
		Where("calling_campaigns.status = ?", models.CallingCampaignActive).
		Order("call_queue_items.priority DESC, call_queue_items.scheduled_at, call_queue_items.id").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ProcessQueueItem dials the lead behind a queue item. A failed dial that
// can still be retried returns an error wrapping queue.ErrRequeue.
func (s *Service) ProcessQueueItem(ctx context.Context, itemID uint) error {
	var (
		item models.CallQueueItem
		lead models.CallingLead
		call models.Call
		skip bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.LockForUpdate(tx).First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueItemNotFound
			}
			return err
		}
		if item.Status != models.QueueStatusPending && item.Status != models.QueueStatusRetrying {
			skip = true
			return nil
		}

		var camp models.CallingCampaign
		if err := tx.First(&camp, item.CampaignID).Error; err != nil {
			return fmt.Errorf("failed to load campaign: %w", err)
		}
		if camp.Status != models.CallingCampaignActive {
			skip = true
			return nil
		}
		if err := tx.First(&lead, item.LeadID).Error; err != nil {
			return fmt.Errorf("failed to load lead: %w", err)
		}

		now := s.now()
		from := ""
		if s.Dialer != nil {
			from = s.Dialer.From()
		}
		call = models.Call{
			CampaignID: item.CampaignID,
			LeadID:     lead.ID,
			UserID:     item.UserID,
			Status:     models.CallStatusQueued,
			Direction:  "outbound",
			FromNumber: from,
			ToNumber:   lead.Phone,
		}
		if err := tx.Create(&call).Error; err != nil {
			return fmt.Errorf("failed to create call record: %w", err)
		}
		return tx.Model(&item).Updates(map[string]interface{}{
			"status":     models.QueueStatusProcessing,
			"started_at": now,
			"call_id":    call.ID,
		}).Error
	})
	if err != nil || skip {
		return err
	}

	log := s.Logger.WithFields(logrus.Fields{"queue_item_id": item.ID, "call_id": call.ID, "lead_id": lead.ID})

	var dialErr error
	var sid string
	if s.Dialer == nil {
		dialErr = config.NotConfigured("Twilio")
	} else {
		res, err := s.Dialer.Dial(ctx, lead.Phone, call.ID)
		if err != nil {
			dialErr = err
		} else {
			sid = res.SID
		}
	}
	if dialErr != nil {
		utils.RecordCallInitiated(string(models.CallStatusFailed))
		utils.RecordIntegrationError("twilio")
		log.WithError(dialErr).Warn("Failed to initiate call")
		return s.failDial(ctx, &item, &call, dialErr)
	}

	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&call).Updates(map[string]interface{}{
			"twilio_call_sid": sid,
			"status":          models.CallStatusRinging,
			"started_at":      now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&lead).Updates(map[string]interface{}{
			"status":         models.CallingLeadCalling,
			"call_attempts":  gorm.Expr("call_attempts + 1"),
			"last_call_date": now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.CallingCampaign{}).Where("id = ?", item.CampaignID).
			UpdateColumn("calls_made", gorm.Expr("calls_made + 1")).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record dialed call: %w", err)
	}

	utils.RecordCallInitiated(string(models.CallStatusRinging))
	log.WithField("twilio_call_sid", sid).Info("Call initiated")
	s.broadcast(item.UserID, EventCallStarted, map[string]interface{}{
		"callId":   call.ID,
		"leadName": lead.FullName,
		"phone":    lead.Phone,
	})
	return nil
}

func (s *Service) failDial(ctx context.Context, item *models.CallQueueItem, call *models.Call, dialErr error) error {
	now := s.now()
	item.RetryCount++
	retry := item.CanRetry() && !errors.Is(dialErr, config.ErrIntegrationNotConfigured)

	updates := map[string]interface{}{
		"retry_count":   item.RetryCount,
		"error_message": "Failed to initiate call: " + dialErr.Error(),
	}
	if retry {
		updates["status"] = models.QueueStatusRetrying
		updates["scheduled_at"] = now.Add(time.Duration(item.RetryCount) * retryBackoff)
	} else {
		updates["status"] = models.QueueStatusFailed
		updates["completed_at"] = now
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(call).Updates(map[string]interface{}{
			"status":   models.CallStatusFailed,
			"ended_at": now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(item).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record dial failure: %w", err)
	}

	if retry {
		return fmt.Errorf("%w: %v", queue.ErrRequeue, dialErr)
	}
	return fmt.Errorf("failed to initiate call: %w", dialErr)
}

// HandleJob adapts ProcessQueueItem to the queue consumer
func (s *Service) HandleJob(ctx context.Context, job queue.CallJob) error {
	return s.ProcessQueueItem(ctx, job.QueueItemID)
}
