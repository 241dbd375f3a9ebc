package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

type ActivityController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewActivityController(db *gorm.DB, logger *logrus.Entry) *ActivityController {
	return &ActivityController{DB: db, Logger: logger}
}

// GetActivities returns the activity log, newest first
func (ac *ActivityController) GetActivities(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	page, limit, offset := utils.Pagination(c)

	query := ac.DB.Model(&models.Activity{}).Where("user_id = ?", sess.UserID)
	if et := c.Query("entity_type"); et != "" {
		entityType, err := models.ParseEntityType(et)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid entity type", err)
		}
		query = query.Where("entity_type = ?", entityType)
	}
	if id := c.QueryInt("entity_id"); id > 0 {
		query = query.Where("entity_id = ?", id)
	}
	if t := c.Query("type"); t != "" {
		if !models.ActivityType(t).Valid() {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid activity type", nil)
		}
		query = query.Where("type = ?", t)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count activities", err)
	}

	var activities []models.Activity
	if err := query.Order("date DESC, id DESC").Offset(offset).Limit(limit).Find(&activities).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch activities", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  activities,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// CreateNote appends a free-text note to a lead, task or campaign
func (ac *ActivityController) CreateNote(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input struct {
		EntityType  models.EntityType `json:"entity_type" validate:"required,enum"`
		EntityID    uint              `json:"entity_id" validate:"required"`
		Description string            `json:"description" validate:"required,max=1000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	input.Description = utils.SanitizeString(input.Description)
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	activity := models.Activity{
		UserID:      sess.UserID,
		Type:        models.ActivityNote,
		Description: input.Description,
		Date:        time.Now(),
		EntityID:    input.EntityID,
		EntityType:  input.EntityType,
		Actor:       sess.Owner(),
	}
	if err := ac.DB.Create(&activity).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save note", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(activity))
}
