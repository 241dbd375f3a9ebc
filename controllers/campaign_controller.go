package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/campaign"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

type CampaignController struct {
	DB     *gorm.DB
	Engine *campaign.Engine
	Logger *logrus.Entry
}

func NewCampaignController(db *gorm.DB, engine *campaign.Engine, logger *logrus.Entry) *CampaignController {
	return &CampaignController{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

// CampaignWithProgress is a campaign as the board shows it
type CampaignWithProgress struct {
	models.Campaign
	Progress campaign.Progress `json:"progress_summary"`
}

// CreateCampaign instantiates the outreach template for one lead
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input struct {
		LeadID uint   `json:"lead_id" validate:"required"`
		Owner  string `json:"owner" validate:"omitempty,max=100"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := cc.DB.Where("id = ? AND user_id = ?", input.LeadID, sess.UserID).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	owner := input.Owner
	if owner == "" && lead.Owner == "" {
		owner = sess.Owner()
	}

	camp, _, err := cc.Engine.CreateCampaign(c.UserContext(), &lead, owner)
	if err != nil {
		return cc.campaignError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(CampaignWithProgress{
		Campaign: *camp,
		Progress: cc.Engine.Progress(camp),
	}))
}

// GetCampaigns lists campaigns with their derived progress
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	page, limit, offset := utils.Pagination(c)

	query := cc.DB.Model(&models.Campaign{}).Where("user_id = ?", sess.UserID)
	if status := c.Query("status"); status != "" {
		s, err := models.ParseCampaignStatus(status)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", err)
		}
		query = query.Where("status = ?", s)
	}
	if owner := c.Query("owner"); owner != "" {
		query = query.Where("owner = ?", owner)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count campaigns", err)
	}

	var campaigns []models.Campaign
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&campaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaigns", err)
	}

	data := make([]CampaignWithProgress, 0, len(campaigns))
	for i := range campaigns {
		data = append(data, CampaignWithProgress{
			Campaign: campaigns[i],
			Progress: cc.Engine.Progress(&campaigns[i]),
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  data,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetCampaign returns a campaign with its tasks in step order
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}

	var camp models.Campaign
	err = cc.DB.Preload("Tasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number ASC")
	}).Where("id = ? AND user_id = ?", id, sess.UserID).First(&camp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
	}

	return c.JSON(utils.SuccessResponse(CampaignWithProgress{
		Campaign: camp,
		Progress: cc.Engine.Progress(&camp),
	}))
}

func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	return cc.changeStatus(c, cc.Engine.PauseCampaign)
}

func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	return cc.changeStatus(c, cc.Engine.ResumeCampaign)
}

func (cc *CampaignController) changeStatus(c *fiber.Ctx, change func(context.Context, uint, string) (*models.Campaign, error)) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}

	var count int64
	if err := cc.DB.Model(&models.Campaign{}).Where("id = ? AND user_id = ?", id, sess.UserID).Count(&count).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
	}
	if count == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	camp, err := change(c.UserContext(), id, sess.Owner())
	if err != nil {
		return cc.campaignError(c, err)
	}
	return c.JSON(utils.SuccessResponse(CampaignWithProgress{
		Campaign: *camp,
		Progress: cc.Engine.Progress(camp),
	}))
}

// CreateBatch starts campaigns for the given leads, or for every lead
// without one when no ids are sent.
func (cc *CampaignController) CreateBatch(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input struct {
		LeadIDs      []uint `json:"lead_ids"`
		DefaultOwner string `json:"default_owner" validate:"omitempty,max=100"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.DefaultOwner == "" {
		input.DefaultOwner = sess.Owner()
	}

	query := cc.DB.Where("user_id = ?", sess.UserID)
	if len(input.LeadIDs) > 0 {
		query = query.Where("id IN ?", input.LeadIDs)
	} else {
		query = query.Where("campaign_id IS NULL")
	}

	var leads []models.Lead
	if err := query.Order("id ASC").Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}
	if len(leads) == 0 && len(input.LeadIDs) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No leads to start campaigns for", nil)
	}

	result := cc.Engine.CreateBatch(c.UserContext(), leads, input.DefaultOwner)
	found := make(map[uint]bool, len(leads))
	for _, l := range leads {
		found[l.ID] = true
	}
	for _, id := range input.LeadIDs {
		if !found[id] {
			found[id] = true
			result.Errors = append(result.Errors, fmt.Sprintf("Lead %d not found", id))
		}
	}
	cc.Logger.WithFields(logrus.Fields{
		"user_id": sess.UserID,
		"created": result.Created,
		"errors":  len(result.Errors),
	}).Info("Batch campaign creation")

	return c.JSON(utils.SuccessResponse(result))
}

// GetTemplate returns the active campaign template
func (cc *CampaignController) GetTemplate(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(cc.Engine.Template))
}

// PreviewSchedule lists each step with the due date it would get for a given start
func (cc *CampaignController) PreviewSchedule(c *fiber.Ctx) error {
	start := cc.Engine.Today()
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid start date, expected YYYY-MM-DD", err)
		}
		start = parsed
	}

	tmpl := cc.Engine.Template
	dates := campaign.ScheduleDueDates(start, tmpl)
	type scheduledStep struct {
		campaign.Step
		DueDate string `json:"due_date"`
		Phase   string `json:"phase"`
	}
	steps := make([]scheduledStep, 0, tmpl.Len())
	for i, step := range tmpl.Steps {
		steps = append(steps, scheduledStep{
			Step:    step,
			DueDate: dates[i].Format("2006-01-02"),
			Phase:   tmpl.PhaseLabel(step.Number),
		})
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"template":   tmpl.Name,
		"start_date": start.Format("2006-01-02"),
		"end_date":   start.AddDate(0, 0, tmpl.DurationDays).Format("2006-01-02"),
		"steps":      steps,
	}))
}

func (cc *CampaignController) campaignError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, campaign.ErrCampaignNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	case errors.Is(err, campaign.ErrLeadHasCampaign):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead already has a campaign", nil)
	case errors.Is(err, campaign.ErrCampaignCompleted):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Campaign already completed", nil)
	case errors.Is(err, campaign.ErrLeadHasNoID):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Lead has no identifier", nil)
	}
	utils.LogError("campaign_update", err, nil)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update campaign", nil)
}
