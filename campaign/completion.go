package campaign

import (
	"context"
	"errors"
	"fmt"

	"runwayiq/models"
	"runwayiq/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// outcomeLeadStatus lists the outcomes that move the lead through the pipeline
var outcomeLeadStatus = map[models.Outcome]models.LeadStatus{
	models.OutcomeNotInterested:         models.LeadStatusClosedLost,
	models.OutcomeRemoveFromCallingList: models.LeadStatusClosedLost,
	models.OutcomeBookedDemo:            models.LeadStatusDemoScheduled,
}

// CompletionResult describes everything a completion changed
type CompletionResult struct {
	Task              models.Task       `json:"task"`
	Campaign          *models.Campaign  `json:"campaign,omitempty"`
	CampaignAdvanced  bool              `json:"campaign_advanced"`
	CampaignCompleted bool              `json:"campaign_completed"`
	LeadStatus        models.LeadStatus `json:"lead_status,omitempty"`
}

// CompleteTask marks a task done, records its outcome and advances the owning
// campaign in a single transaction. Completing a task twice returns
// ErrTaskAlreadyCompleted and changes nothing.
func (e *Engine) CompleteTask(ctx context.Context, taskID uint, outcome *models.Outcome, actor string) (*CompletionResult, error) {
	if outcome != nil && !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}

	result := &CompletionResult{}
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task := &result.Task
		if err := utils.LockForUpdate(tx).First(task, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task: %w", err)
		}
		if task.Completed {
			return ErrTaskAlreadyCompleted
		}

		now := e.now()
		if err := tx.Model(task).Updates(map[string]interface{}{
			"status":       models.TaskStatusDone,
			"completed":    true,
			"completed_at": now,
			"outcome":      outcome,
		}).Error; err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		task.Status = models.TaskStatusDone
		task.Completed = true
		task.CompletedAt = &now
		task.Outcome = outcome

		desc := "Task completed"
		outcomeText := ""
		if outcome != nil {
			outcomeText = string(*outcome)
			desc = "Task completed with outcome: " + outcomeText
		}
		if err := appendActivity(tx, models.Activity{
			UserID:      task.UserID,
			Type:        models.ActivityTaskCompleted,
			Description: desc,
			Date:        now,
			EntityID:    task.ID,
			EntityType:  models.EntityTask,
			Outcome:     outcomeText,
			Actor:       actor,
		}); err != nil {
			return err
		}

		if task.CampaignID != nil {
			if err := e.advanceCampaign(tx, task, result, actor); err != nil {
				return err
			}
		}

		if outcome != nil && task.LeadID != nil {
			if next, ok := outcomeLeadStatus[*outcome]; ok {
				changed, err := e.transitionLead(tx, *task.LeadID, next, actor)
				if err != nil {
					return err
				}
				if changed {
					result.LeadStatus = next
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.RecordTaskCompleted(outcomeLabel(outcome))
	e.Logger.WithFields(logrus.Fields{
		"task_id":            taskID,
		"outcome":            outcomeLabel(outcome),
		"campaign_advanced":  result.CampaignAdvanced,
		"campaign_completed": result.CampaignCompleted,
	}).Info("Task completed")
	return result, nil
}

// advanceCampaign moves current_step to the lowest incomplete step after the
// completed one, or completes the campaign when none remains.
func (e *Engine) advanceCampaign(tx *gorm.DB, task *models.Task, result *CompletionResult, actor string) error {
	var camp models.Campaign
	if err := utils.LockForUpdate(tx).First(&camp, *task.CampaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	result.Campaign = &camp

	if camp.IsCompleted() || task.StepNumber != camp.CurrentStep {
		return nil
	}

	var next models.Task
	err := tx.Where("campaign_id = ? AND completed = ? AND step_number > ?", camp.ID, false, task.StepNumber).
		Order("step_number asc").
		First(&next).Error
	switch {
	case err == nil:
		if err := tx.Model(&camp).Update("current_step", next.StepNumber).Error; err != nil {
			return fmt.Errorf("failed to advance campaign: %w", err)
		}
		camp.CurrentStep = next.StepNumber
		result.CampaignAdvanced = true
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("failed to find next step: %w", err)
	}

	now := e.now()
	if err := tx.Model(&camp).Updates(map[string]interface{}{
		"current_step": camp.TotalSteps,
		"status":       models.CampaignStatusCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to complete campaign: %w", err)
	}
	camp.CurrentStep = camp.TotalSteps
	camp.Status = models.CampaignStatusCompleted
	camp.CompletedAt = &now
	result.CampaignAdvanced = true
	result.CampaignCompleted = true

	return appendActivity(tx, models.Activity{
		UserID:      camp.UserID,
		Type:        models.ActivityCampaignCompleted,
		Description: fmt.Sprintf("Campaign %q completed", camp.Name),
		Date:        now,
		EntityID:    camp.ID,
		EntityType:  models.EntityCampaign,
		Actor:       actor,
	})
}

func (e *Engine) transitionLead(tx *gorm.DB, leadID uint, status models.LeadStatus, actor string) (bool, error) {
	var lead models.Lead
	if err := tx.First(&lead, leadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load lead: %w", err)
	}
	if lead.Status == status {
		return false, nil
	}
	if err := tx.Model(&lead).Update("status", status).Error; err != nil {
		return false, fmt.Errorf("failed to update lead status: %w", err)
	}
	return true, appendActivity(tx, models.Activity{
		UserID:      lead.UserID,
		Type:        models.ActivityLeadStatusChanged,
		Description: fmt.Sprintf("Lead status changed from %s to %s", lead.Status, status),
		Date:        e.now(),
		EntityID:    lead.ID,
		EntityType:  models.EntityLead,
		Actor:       actor,
	})
}

// UpdateTaskStatus moves a task between board columns. Done is routed
// through CompleteTask; a completed task may only be archived.
func (e *Engine) UpdateTaskStatus(ctx context.Context, id uint, status models.TaskStatus, actor string) (*models.Task, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if status == models.TaskStatusDone {
		res, err := e.CompleteTask(ctx, id, nil, actor)
		if err != nil {
			return nil, err
		}
		return &res.Task, nil
	}

	var task models.Task
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.LockForUpdate(tx).First(&task, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		if task.Completed && status != models.TaskStatusArchived {
			return ErrTaskAlreadyCompleted
		}
		if task.Status == status {
			return nil
		}
		if err := tx.Model(&task).Update("status", status).Error; err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}
		task.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func outcomeLabel(o *models.Outcome) string {
	if o == nil {
		return ""
	}
	return string(*o)
}
