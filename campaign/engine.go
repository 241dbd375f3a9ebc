package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"runwayiq/models"
	"runwayiq/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Engine instantiates and advances outreach campaigns
type Engine struct {
	DB       *gorm.DB
	Template *Template
	Logger   *logrus.Entry

	loc *time.Location
	now func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone that decides which calendar day "today" is
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func NewEngine(db *gorm.DB, tmpl *Template, logger *logrus.Entry, opts ...Option) *Engine {
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	if logger == nil {
		logger = utils.Logger("campaign")
	}
	e := &Engine{
		DB:       db,
		Template: tmpl,
		Logger:   logger,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location is the timezone calendar days are counted in
func (e *Engine) Location() *time.Location { return e.loc }

// Now is the engine's clock
func (e *Engine) Now() time.Time { return e.now() }

// Today is the current calendar date in the engine's location
func (e *Engine) Today() time.Time {
	return utils.CalendarDate(e.now(), e.loc)
}

// CreateCampaign writes a campaign, one task per template step and a creation
// activity, and links the lead, all in one transaction.
func (e *Engine) CreateCampaign(ctx context.Context, lead *models.Lead, owner string) (*models.Campaign, []models.Task, error) {
	if lead == nil || lead.ID == 0 {
		return nil, nil, ErrLeadHasNoID
	}
	if lead.CampaignID != nil {
		return nil, nil, ErrLeadHasCampaign
	}
	if owner == "" {
		owner = lead.Owner
	}

	start := e.Today()
	camp := &models.Campaign{
		UserID:       lead.UserID,
		Name:         fmt.Sprintf("%s - %s", lead.FullName, e.Template.Name),
		LeadID:       lead.ID,
		LeadName:     lead.FullName,
		Owner:        owner,
		StartDate:    start,
		Status:       models.CampaignStatusActive,
		CurrentStep:  1,
		TotalSteps:   e.Template.Len(),
		TemplateName: e.Template.Name,
	}

	var tasks []models.Task
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(camp).Error; err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}

		var err error
		tasks, err = e.Template.BuildTasks(camp, lead)
		if err != nil {
			return err
		}
		if err := tx.Create(&tasks).Error; err != nil {
			return fmt.Errorf("failed to create campaign tasks: %w", err)
		}

		if err := appendActivity(tx, models.Activity{
			UserID:      lead.UserID,
			Type:        models.ActivityCampaignCreated,
			Description: fmt.Sprintf("Campaign %q created with %d tasks", camp.Name, len(tasks)),
			Date:        e.now(),
			EntityID:    camp.ID,
			EntityType:  models.EntityCampaign,
			Actor:       owner,
		}); err != nil {
			return err
		}

		res := tx.Model(&models.Lead{}).Where("id = ? AND campaign_id IS NULL", lead.ID).Update("campaign_id", camp.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to link lead to campaign: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrLeadHasCampaign
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	lead.CampaignID = &camp.ID
	camp.Tasks = tasks
	utils.RecordCampaignCreated()
	e.Logger.WithFields(logrus.Fields{
		"campaign_id": camp.ID,
		"lead_id":     lead.ID,
		"tasks":       len(tasks),
	}).Info("Campaign created")
	return camp, tasks, nil
}

// BuildTasks renders the campaign's tasks in ascending step order without persisting them
func (t *Template) BuildTasks(camp *models.Campaign, lead *models.Lead) ([]models.Task, error) {
	dueDates := ScheduleDueDates(camp.StartDate, t)
	tasks := make([]models.Task, 0, len(t.Steps))
	for i, step := range t.Steps {
		title, desc, err := t.RenderTask(step, lead)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step.Number, err)
		}
		due := dueDates[i]
		tasks = append(tasks, models.Task{
			UserID:      camp.UserID,
			Title:       title,
			Description: desc,
			Status:      models.TaskStatusToDo,
			Priority:    step.EffectivePriority(),
			Points:      step.Points,
			DueDate:     &due,
			Completed:   false,
			LeadID:      utils.Pointer(lead.ID),
			LeadName:    lead.FullName,
			CampaignID:  utils.Pointer(camp.ID),
			StepNumber:  step.Number,
			TaskType:    step.Channel,
		})
	}
	return tasks, nil
}

// ScheduleDueDates maps every step onto start plus its day offset in calendar days
func ScheduleDueDates(start time.Time, t *Template) []time.Time {
	dates := make([]time.Time, len(t.Steps))
	for i, step := range t.Steps {
		dates[i] = start.AddDate(0, 0, step.DayOffset)
	}
	return dates
}

// BatchResult reports a best-effort batch instantiation
type BatchResult struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}

// CreateBatch instantiates a campaign per lead and never stops on a single failure
func (e *Engine) CreateBatch(ctx context.Context, leads []models.Lead, defaultOwner string) BatchResult {
	result := BatchResult{Errors: []string{}}
	for i := range leads {
		lead := &leads[i]
		owner := lead.Owner
		if owner == "" {
			owner = defaultOwner
		}
		if _, _, err := e.CreateCampaign(ctx, lead, owner); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to create campaign for %s: %v", lead.FullName, err))
			continue
		}
		result.Created++
	}
	if len(result.Errors) > 0 {
		e.Logger.WithField("errors", len(result.Errors)).Warn("Batch campaign creation finished with errors")
	}
	return result
}

// PauseCampaign stops an active campaign from advancing
func (e *Engine) PauseCampaign(ctx context.Context, id uint, actor string) (*models.Campaign, error) {
	return e.setStatus(ctx, id, models.CampaignStatusPaused, models.ActivityCampaignPaused, actor)
}

func (e *Engine) ResumeCampaign(ctx context.Context, id uint, actor string) (*models.Campaign, error) {
	return e.setStatus(ctx, id, models.CampaignStatusActive, models.ActivityCampaignResumed, actor)
}

func (e *Engine) setStatus(ctx context.Context, id uint, status models.CampaignStatus, activity models.ActivityType, actor string) (*models.Campaign, error) {
	var camp models.Campaign
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.LockForUpdate(tx).First(&camp, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return err
		}
		if camp.IsCompleted() {
			return ErrCampaignCompleted
		}
		if camp.Status == status {
			return nil
		}
		if err := tx.Model(&camp).Update("status", status).Error; err != nil {
			return fmt.Errorf("failed to update campaign status: %w", err)
		}
		return appendActivity(tx, models.Activity{
			UserID:      camp.UserID,
			Type:        activity,
			Description: fmt.Sprintf("Campaign %q %s", camp.Name, statusVerb(status)),
			Date:        e.now(),
			EntityID:    camp.ID,
			EntityType:  models.EntityCampaign,
			Actor:       actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return &camp, nil
}

func statusVerb(s models.CampaignStatus) string {
	if s == models.CampaignStatusPaused {
		return "paused"
	}
	return "resumed"
}

// TodaysTasks lists open campaign tasks due today, optionally for one owner
func (e *Engine) TodaysTasks(ctx context.Context, owner string, now time.Time) ([]models.Task, error) {
	today := utils.CalendarDate(now, e.loc)
	q := e.DB.WithContext(ctx).
		Model(&models.Task{}).
		Joins("JOIN campaigns ON campaigns.id = tasks.campaign_id AND campaigns.deleted_at IS NULL").
		Where("tasks.completed = ?", false).
		Where("tasks.due_date >= ? AND tasks.due_date < ?", today, today.AddDate(0, 0, 1))
	if owner != "" {
		q = q.Where("campaigns.owner = ?", owner)
	}

	var tasks []models.Task
	if err := q.Order("tasks.campaign_id asc, tasks.step_number asc").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to load today's tasks: %w", err)
	}
	return tasks, nil
}

func appendActivity(tx *gorm.DB, a models.Activity) error {
	if err := tx.Create(&a).Error; err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
