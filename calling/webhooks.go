package calling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/integrations/openai"
	"runwayiq/integrations/twilio"
	"runwayiq/models"
	"runwayiq/utils"
)

const minSpeechConfidence = 0.5

// StatusUpdate is the subset of Twilio's status callback we act on
type StatusUpdate struct {
	CallSID      string
	CallStatus   string
	Duration     string
	RecordingURL string
}

func (s *Service) loadCall(ctx context.Context, callID uint) (*models.Call, error) {
	var call models.Call
	err := s.DB.WithContext(ctx).
		Preload("Lead").
		Preload("Campaign").
		Preload("Campaign.AIAgent").
		First(&call, callID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// VoiceTwiML answers Twilio's first request once the lead picks up
func (s *Service) VoiceTwiML(ctx context.Context, callID uint) (string, error) {
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return "", err
	}
	if !call.Status.Final() && call.Status != models.CallStatusInProgress {
		if err := s.DB.WithContext(ctx).Model(call).Update("status", models.CallStatusInProgress).Error; err != nil {
			return "", err
		}
	}
	return twilio.GreetingTwiML(s.gatherURL(call.ID))
}

// HandleSpeech stores what the lead said, asks the model for the reply and
// returns the TwiML that speaks it.
func (s *Service) HandleSpeech(ctx context.Context, callID uint, speech string, confidence float64) (string, error) {
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return "", err
	}

	var history []models.CallTranscript
	if err := s.DB.WithContext(ctx).Where("call_id = ?", call.ID).Order("id").Find(&history).Error; err != nil {
		return "", err
	}

	heard := speech
	if heard == "" {
		heard = "No speech detected"
	}
	if err := s.storeTranscript(ctx, call, models.SpeakerHuman, heard, confidence); err != nil {
		return "", err
	}

	reply := twilio.DidNotCatch
	if speech != "" && confidence > minSpeechConfidence {
		reply = s.reply(ctx, call, history, speech)
	}
	if err := s.storeTranscript(ctx, call, models.SpeakerAI, reply, 1); err != nil {
		return "", err
	}

	return twilio.ReplyTwiML(reply, s.gatherURL(call.ID))
}

func (s *Service) reply(ctx context.Context, call *models.Call, history []models.CallTranscript, speech string) string {
	if s.AI == nil {
		return openai.FallbackReply
	}
	req := openai.ReplyRequest{History: history, Message: speech}
	if call.Lead != nil {
		req.LeadName = call.Lead.FullName
		req.Company = call.Lead.Company
	}
	if call.Campaign != nil && call.Campaign.AIAgent != nil {
		agent := call.Campaign.AIAgent
		req.SystemPrompt = agent.SystemPrompt
		req.Temperature = agent.Temperature
		req.MaxTokens = agent.MaxTokens
	}

	reply, err := s.AI.Reply(ctx, req)
	if err != nil {
		utils.RecordIntegrationError("openai")
		s.Logger.WithError(err).WithField("call_id", call.ID).Warn("AI response failed")
		return openai.RepeatReply
	}
	return reply
}

func (s *Service) storeTranscript(ctx context.Context, call *models.Call, speaker models.Speaker, msg string, confidence float64) error {
	offset := 0
	if call.StartedAt != nil {
		offset = int(s.now().Sub(*call.StartedAt).Seconds())
		if offset < 0 {
			offset = 0
		}
	}
	t := models.CallTranscript{
		CallID:           call.ID,
		Speaker:          speaker,
		Message:          msg,
		TimestampSeconds: offset,
		Confidence:       confidence,
	}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		return fmt.Errorf("failed to store transcript: %w", err)
	}
	s.broadcast(call.UserID, EventTranscript, map[string]interface{}{
		"callId":  call.ID,
		"speaker": speaker,
		"message": msg,
	})
	return nil
}

// finalLeadStatus is where a calling lead lands once its call ends
var finalLeadStatus = map[models.CallStatus]models.CallingLeadStatus{
	models.CallStatusCompleted: models.CallingLeadContacted,
	models.CallStatusBusy:      models.CallingLeadQueued,
	models.CallStatusNoAnswer:  models.CallingLeadQueued,
	models.CallStatusFailed:    models.CallingLeadCompleted,
}

// HandleStatus applies a Twilio status callback. Unknown call SIDs are
// ignored; updates after the call reached a final status are dropped.
func (s *Service) HandleStatus(ctx context.Context, u StatusUpdate) (*models.Call, error) {
	status, err := models.ParseTwilioCallStatus(u.CallStatus)
	if err != nil {
		return nil, err
	}

	var (
		call    models.Call
		applied bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := utils.LockForUpdate(tx).Where("twilio_call_sid = ?", u.CallSID).First(&call).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if call.Status.Final() {
			return nil
		}
		applied = true

		updates := map[string]interface{}{"status": status}
		if status.Final() {
			updates["ended_at"] = s.now()
		}
		if status == models.CallStatusCompleted {
			duration, _ := strconv.Atoi(u.Duration)
			updates["duration_seconds"] = duration
			call.DurationSeconds = duration
			if u.RecordingURL != "" {
				updates["recording_url"] = u.RecordingURL
			}
			if duration > 0 {
				if err := tx.Model(&models.CallingCampaign{}).Where("id = ?", call.CampaignID).
					UpdateColumn("calls_connected", gorm.Expr("calls_connected + 1")).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.Model(&call).Updates(updates).Error; err != nil {
			return err
		}
		call.Status = status

		if !status.Final() {
			return nil
		}
		if err := tx.Model(&models.CallingLead{}).Where("id = ?", call.LeadID).
			Update("status", finalLeadStatus[status]).Error; err != nil {
			return err
		}

		itemUpdates := map[string]interface{}{
			"status":       models.QueueStatusCompleted,
			"completed_at": s.now(),
		}
		if status != models.CallStatusCompleted {
			itemUpdates["status"] = models.QueueStatusFailed
			itemUpdates["error_message"] = "call ended: " + string(status)
		}
		return tx.Model(&models.CallQueueItem{}).Where("call_id = ?", call.ID).Updates(itemUpdates).Error
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}

	s.broadcast(call.UserID, EventStatusUpdate, map[string]interface{}{
		"callId": call.ID,
		"status": call.Status,
	})
	if call.Status.Final() {
		s.broadcast(call.UserID, EventCallEnded, map[string]interface{}{
			"callId":       call.ID,
			"status":       call.Status,
			"duration":     call.DurationSeconds,
			"durationText": utils.FormatDuration(time.Duration(call.DurationSeconds) * time.Second),
		})
	}
	s.Logger.WithFields(logrus.Fields{"call_id": call.ID, "status": call.Status}).Info("Call status updated")
	return &call, nil
}

// AnalyzeCall classifies a finished call and moves its lead accordingly
func (s *Service) AnalyzeCall(ctx context.Context, callID uint) error {
	if s.AI == nil {
		return nil
	}
	var transcript []models.CallTranscript
	if err := s.DB.WithContext(ctx).Where("call_id = ?", callID).Order("id").Find(&transcript).Error; err != nil {
		return err
	}
	if len(transcript) == 0 {
		return nil
	}

	analysis, err := s.AI.Analyze(ctx, transcript)
	if err != nil {
		utils.RecordIntegrationError("openai")
		return fmt.Errorf("call analysis failed: %w", err)
	}

	var call models.Call
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&call, callID).Error; err != nil {
			return err
		}
		if err := tx.Model(&call).Updates(map[string]interface{}{
			"call_outcome":   analysis.CallOutcome,
			"interest_level": analysis.InterestLevel,
			"summary":        analysis.Summary,
			"sentiment":      analysis.Sentiment,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.CallingLead{}).Where("id = ?", call.LeadID).
			Update("status", analysis.LeadStatus()).Error; err != nil {
			return err
		}
		if analysis.LeadStatus() == models.CallingLeadInterested {
			return tx.Model(&models.CallingCampaign{}).Where("id = ?", call.CampaignID).
				UpdateColumn("calls_interested", gorm.Expr("calls_interested + 1")).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcast(call.UserID, EventCallAnalyzed, map[string]interface{}{
		"callId":        call.ID,
		"outcome":       analysis.CallOutcome,
		"interestLevel": analysis.InterestLevel,
	})
	return nil
}
