package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/calling"
	"runwayiq/config"
	"runwayiq/integrations/elevenlabs"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

const previewText = "Hi, this is a quick preview of how I will sound on your calls."

// Synthesizer turns agent text into speech audio
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

type CallingController struct {
	DB      *gorm.DB
	Service *calling.Service
	Hub     *calling.Hub
	Voice   Synthesizer
	Logger  *logrus.Entry
}

func NewCallingController(db *gorm.DB, svc *calling.Service, hub *calling.Hub, voice Synthesizer, logger *logrus.Entry) *CallingController {
	return &CallingController{
		DB:      db,
		Service: svc,
		Hub:     hub,
		Voice:   voice,
		Logger:  logger,
	}
}

type AgentRequest struct {
	Name         string  `json:"name" validate:"required,max=100"`
	SystemPrompt string  `json:"system_prompt" validate:"required"`
	VoiceID      string  `json:"voice_id" validate:"omitempty,max=64"`
	Temperature  float32 `json:"temperature" validate:"min=0,max=2"`
	MaxTokens    int     `json:"max_tokens" validate:"min=0,max=1000"`
	IsActive     *bool   `json:"is_active"`
}

func (r AgentRequest) apply(agent *models.AIAgent) {
	agent.Name = utils.SanitizeString(r.Name)
	agent.SystemPrompt = r.SystemPrompt
	agent.VoiceID = r.VoiceID
	agent.Temperature = r.Temperature
	agent.MaxTokens = r.MaxTokens
	if agent.VoiceID == "" {
		agent.VoiceID = elevenlabs.DefaultVoiceID
	}
	if agent.Temperature == 0 {
		agent.Temperature = 0.7
	}
	if agent.MaxTokens == 0 {
		agent.MaxTokens = 150
	}
	if r.IsActive != nil {
		agent.IsActive = *r.IsActive
	}
}

func (cc *CallingController) CreateAgent(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input AgentRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	agent := models.AIAgent{UserID: sess.UserID, IsActive: true}
	input.apply(&agent)
	if err := cc.DB.Create(&agent).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create agent", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(agent))
}

func (cc *CallingController) GetAgents(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var agents []models.AIAgent
	if err := cc.DB.Where("user_id = ?", sess.UserID).Order("created_at DESC").Find(&agents).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch agents", err)
	}
	return c.JSON(utils.SuccessResponse(agents))
}

func (cc *CallingController) UpdateAgent(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	agent, err := cc.findAgent(c, sess.UserID)
	if err != nil {
		return cc.callingError(c, err)
	}

	var input AgentRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	input.apply(agent)
	if err := cc.DB.Save(agent).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update agent", err)
	}
	return c.JSON(utils.SuccessResponse(agent))
}

// PreviewAgentVoice returns a short ElevenLabs rendering of the agent's voice
func (cc *CallingController) PreviewAgentVoice(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	if cc.Voice == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, config.NotConfigured("ElevenLabs").Error(), nil)
	}
	agent, err := cc.findAgent(c, sess.UserID)
	if err != nil {
		return cc.callingError(c, err)
	}

	text := c.Query("text", previewText)
	audio, err := cc.Voice.Synthesize(c.UserContext(), agent.VoiceID, text)
	if err != nil {
		utils.RecordIntegrationError("elevenlabs")
		utils.LogError("voice_preview", err, map[string]interface{}{"agent_id": agent.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate voice preview", nil)
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio)
}

func (cc *CallingController) CreateCampaign(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input struct {
		Name        string `json:"name" validate:"required,max=200"`
		Description string `json:"description" validate:"omitempty,max=1000"`
		AIAgentID   *uint  `json:"ai_agent_id"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.AIAgentID != nil {
		var count int64
		cc.DB.Model(&models.AIAgent{}).Where("id = ? AND user_id = ?", *input.AIAgentID, sess.UserID).Count(&count)
		if count == 0 {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Agent not found", nil)
		}
	}

	camp := models.CallingCampaign{
		UserID:      sess.UserID,
		Name:        utils.SanitizeString(input.Name),
		Description: utils.SanitizeString(input.Description),
		AIAgentID:   input.AIAgentID,
		Status:      models.CallingCampaignDraft,
	}
	if err := cc.DB.Create(&camp).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(camp))
}

func (cc *CallingController) GetCampaigns(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var campaigns []models.CallingCampaign
	if err := cc.DB.Preload("AIAgent").Where("user_id = ?", sess.UserID).
		Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaigns", err)
	}
	return c.JSON(utils.SuccessResponse(campaigns))
}

// GetCampaign returns a calling campaign with its leads and queue counts
func (cc *CallingController) GetCampaign(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}

	var camp models.CallingCampaign
	if err := cc.DB.Preload("AIAgent").
		Preload("Leads", func(db *gorm.DB) *gorm.DB { return db.Order("priority DESC, id ASC") }).
		Where("id = ? AND user_id = ?", id, sess.UserID).First(&camp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cc.callingError(c, calling.ErrCampaignNotFound)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
	}

	var queue []struct {
		Status models.QueueStatus
		Count  int64
	}
	if err := cc.DB.Model(&models.CallQueueItem{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", camp.ID).
		Group("status").Scan(&queue).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch queue", err)
	}
	counts := make(map[models.QueueStatus]int64, len(queue))
	for _, q := range queue {
		counts[q.Status] = q.Count
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"campaign": camp,
		"queue":    counts,
	}))
}

type CallingLeadRequest struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	Phone       string `json:"phone" validate:"required,e164"`
	Email       string `json:"email" validate:"omitempty,email"`
	Company     string `json:"company" validate:"omitempty,max=200"`
	Title       string `json:"title" validate:"omitempty,max=200"`
	LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	Priority    int    `json:"priority" validate:"min=0,max=10"`
	Notes       string `json:"notes"`
}

// AddLeads queues phone contacts on a calling campaign
func (cc *CallingController) AddLeads(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}

	var input struct {
		Leads []CallingLeadRequest `json:"leads" validate:"required,min=1,max=1000,dive"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	leads := make([]models.CallingLead, 0, len(input.Leads))
	for _, l := range input.Leads {
		leads = append(leads, models.CallingLead{
			FullName:    utils.SanitizeString(l.FullName),
			Phone:       l.Phone,
			Email:       l.Email,
			Company:     utils.SanitizeString(l.Company),
			Title:       utils.SanitizeString(l.Title),
			LinkedInURL: l.LinkedInURL,
			Priority:    l.Priority,
			Notes:       utils.SanitizeString(l.Notes),
		})
	}

	added, err := cc.Service.AddLeads(c.UserContext(), sess.UserID, id, leads)
	if err != nil {
		return cc.callingError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"message": fmt.Sprintf("Added %d leads", len(added)),
		"leads":   added,
	}))
}

func (cc *CallingController) StartCampaign(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}

	queued, err := cc.Service.Start(c.UserContext(), sess.UserID, id)
	if err != nil {
		return cc.callingError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Campaign started with %d leads queued", queued),
		"data": fiber.Map{
			"campaignId":  id,
			"leadsQueued": queued,
		},
	})
}

func (cc *CallingController) PauseCampaign(c *fiber.Ctx) error {
	return cc.transition(c, cc.Service.Pause, "Campaign paused")
}

func (cc *CallingController) StopCampaign(c *fiber.Ctx) error {
	return cc.transition(c, cc.Service.Stop, "Campaign stopped")
}

func (cc *CallingController) transition(c *fiber.Ctx, change func(context.Context, uint, uint) error, message string) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}

	if err := change(c.UserContext(), sess.UserID, id); err != nil {
		return cc.callingError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    fiber.Map{"campaignId": id},
	})
}

// GetCalls lists the calls placed for a campaign, newest first
func (cc *CallingController) GetCalls(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", err)
	}
	page, limit, offset := utils.Pagination(c)

	query := cc.DB.Model(&models.Call{}).Where("campaign_id = ? AND user_id = ?", id, sess.UserID).
		Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count calls", err)
	}

	var calls []models.Call
	if err := query.Preload("Lead").Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).Find(&calls).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch calls", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  calls,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetCall returns one call with its transcript
func (cc *CallingController) GetCall(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid call ID", err)
	}

	var call models.Call
	if err := cc.DB.Preload("Lead").
		Preload("Transcripts", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ? AND user_id = ?", id, sess.UserID).First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cc.callingError(c, calling.ErrCallNotFound)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch call", err)
	}
	return c.JSON(utils.SuccessResponse(call))
}

func (cc *CallingController) findAgent(c *fiber.Ctx, userID uint) (*models.AIAgent, error) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return nil, calling.ErrAgentNotFound
	}
	var agent models.AIAgent
	if err := cc.DB.Where("id = ? AND user_id = ?", id, userID).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, calling.ErrAgentNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (cc *CallingController) callingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, calling.ErrCampaignNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	case errors.Is(err, calling.ErrAgentNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Agent not found", nil)
	case errors.Is(err, calling.ErrCallNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Call not found", nil)
	case errors.Is(err, calling.ErrNoLeads):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No leads found for this campaign", nil)
	case errors.Is(err, calling.ErrInvalidTransition):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot change to that status", err)
	}
	utils.LogError("calling", err, nil)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update calling campaign", nil)
}
