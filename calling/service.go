// Package calling runs AI cold-calling campaigns: queueing leads, dialing
// them through Twilio and holding the conversation on the voice webhooks.
package calling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/integrations/openai"
	"runwayiq/integrations/twilio"
	"runwayiq/models"
	"runwayiq/queue"
	"runwayiq/utils"
)

// Dialer places outbound calls
type Dialer interface {
	Dial(ctx context.Context, to string, callID uint) (*twilio.DialResult, error)
	From() string
}

// Conversation produces the agent's lines and reads finished calls
type Conversation interface {
	Reply(ctx context.Context, req openai.ReplyRequest) (string, error)
	Analyze(ctx context.Context, transcript []models.CallTranscript) (*openai.Analysis, error)
}

type Service struct {
	DB        *gorm.DB
	Dialer    Dialer
	AI        Conversation
	Publisher queue.Publisher
	Hub       Broadcaster
	Logger    *logrus.Entry
	BaseURL   string
	now       func() time.Time
}

type Option func(*Service)

func WithDialer(d Dialer) Option { return func(s *Service) { s.Dialer = d } }

func WithConversation(c Conversation) Option { return func(s *Service) { s.AI = c } }

func WithPublisher(p queue.Publisher) Option { return func(s *Service) { s.Publisher = p } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(db *gorm.DB, hub Broadcaster, baseURL string, logger *logrus.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = utils.Logger("calling")
	}
	s := &Service{DB: db, Hub: hub, BaseURL: baseURL, Logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) broadcast(userID uint, kind string, data map[string]interface{}) {
	if s.Hub == nil {
		return
	}
	ev := NewEvent(kind, data)
	ev.Timestamp = s.now().UTC()
	s.Hub.Broadcast(userID, ev)
}

func (s *Service) gatherURL(callID uint) string {
	return fmt.Sprintf("%s/twilio/gather/%d", s.BaseURL, callID)
}

func (s *Service) loadCampaign(tx *gorm.DB, userID, campaignID uint) (*models.CallingCampaign, error) {
	var camp models.CallingCampaign
	err := utils.LockForUpdate(tx).Where("id = ? AND user_id = ?", campaignID, userID).First(&camp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load calling campaign: %w", err)
	}
	return &camp, nil
}

// AddLeads attaches leads to a campaign in the queued state
func (s *Service) AddLeads(ctx context.Context, userID, campaignID uint, leads []models.CallingLead) ([]models.CallingLead, error) {
	if len(leads) == 0 {
		return nil, ErrNoLeads
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		camp, err := s.loadCampaign(tx, userID, campaignID)
		if err != nil {
			return err
		}
		if camp.Status == models.CallingCampaignCompleted {
			return fmt.Errorf("%w: campaign is completed", ErrInvalidTransition)
		}
		for i := range leads {
			leads[i].ID = 0
			leads[i].CampaignID = camp.ID
			leads[i].UserID = userID
			leads[i].Status = models.CallingLeadQueued
			if leads[i].Priority == 0 {
				leads[i].Priority = 1
			}
		}
		if err := tx.Create(&leads).Error; err != nil {
			return fmt.Errorf("failed to add leads: %w", err)
		}
		return tx.Model(camp).UpdateColumn("total_leads", gorm.Expr("total_leads + ?", len(leads))).Error
	})
	if err != nil {
		return nil, err
	}
	return leads, nil
}

// Start activates a draft or paused campaign and queues every lead still waiting to be called.
// It returns the number of leads queued.
func (s *Service) Start(ctx context.Context, userID, campaignID uint) (int, error) {
	var queued []models.CallQueueItem
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		camp, err := s.loadCampaign(tx, userID, campaignID)
		if err != nil {
			return err
		}
		if camp.Status != models.CallingCampaignDraft && camp.Status != models.CallingCampaignPaused {
			return fmt.Errorf("%w: cannot start a %s campaign", ErrInvalidTransition, camp.Status)
		}

		var leads []models.CallingLead
		if err := tx.Where("campaign_id = ? AND status = ?", camp.ID, models.CallingLeadQueued).
			Order("priority DESC, id").Find(&leads).Error; err != nil {
			return err
		}
		if len(leads) == 0 {
			return ErrNoLeads
		}

		// leads already holding an open queue item are republished, not duplicated
		var open []models.CallQueueItem
		if err := tx.Where("campaign_id = ? AND status IN ?", camp.ID, openQueueStatuses).Find(&open).Error; err != nil {
			return err
		}
		hasItem := make(map[uint]bool, len(open))
		for _, item := range open {
			hasItem[item.LeadID] = true
		}
		queued = append(queued, open...)

		now := s.now()
		for _, lead := range leads {
			if hasItem[lead.ID] {
				continue
			}
			item := models.CallQueueItem{
				CampaignID:  camp.ID,
				LeadID:      lead.ID,
				UserID:      userID,
				Status:      models.QueueStatusPending,
				Priority:    lead.Priority,
				ScheduledAt: now,
				MaxRetries:  3,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to queue lead %d: %w", lead.ID, err)
			}
			queued = append(queued, item)
		}

		updates := map[string]interface{}{"status": models.CallingCampaignActive}
		if camp.StartDate == nil {
			updates["start_date"] = now
		}
		return tx.Model(camp).Updates(updates).Error
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, queued)
	s.Logger.WithFields(logrus.Fields{"campaign_id": campaignID, "queued": len(queued)}).Info("Calling campaign started")
	return len(queued), nil
}

var openQueueStatuses = []models.QueueStatus{models.QueueStatusPending, models.QueueStatusRetrying}

func (s *Service) publish(ctx context.Context, items []models.CallQueueItem) {
	if s.Publisher == nil {
		return
	}
	for _, item := range items {
		if err := s.Publisher.PublishCall(ctx, queue.NewCallJob(item)); err != nil {
			utils.LogError("call_queue_publish", err, map[string]interface{}{
				"queue_item_id": item.ID,
				"campaign_id":   item.CampaignID,
			})
		}
	}
}

// Pause stops new dials; calls already in progress finish normally
func (s *Service) Pause(ctx context.Context, userID, campaignID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		camp, err := s.loadCampaign(tx, userID, campaignID)
		if err != nil {
			return err
		}
		if camp.Status != models.CallingCampaignActive {
			return fmt.Errorf("%w: cannot pause a %s campaign", ErrInvalidTransition, camp.Status)
		}
		return tx.Model(camp).Update("status", models.CallingCampaignPaused).Error
	})
}

// Stop completes the campaign and fails every queue item that has not been dialed
func (s *Service) Stop(ctx context.Context, userID, campaignID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		camp, err := s.loadCampaign(tx, userID, campaignID)
		if err != nil {
			return err
		}
		if camp.Status == models.CallingCampaignCompleted {
			return fmt.Errorf("%w: campaign is already completed", ErrInvalidTransition)
		}
		now := s.now()
		if err := tx.Model(camp).Updates(map[string]interface{}{
			"status":   models.CallingCampaignCompleted,
			"end_date": now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.CallQueueItem{}).
			Where("campaign_id = ? AND status IN ?", camp.ID, openQueueStatuses).
			Updates(map[string]interface{}{
				"status":        models.QueueStatusFailed,
				"error_message": "campaign stopped",
				"completed_at":  now,
			}).Error
	})
}
