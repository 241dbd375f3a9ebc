package controller

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/campaign"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

const maxTaskTitle = 200

type TaskController struct {
	DB     *gorm.DB
	Engine *campaign.Engine
	Logger *logrus.Entry
}

func NewTaskController(db *gorm.DB, engine *campaign.Engine, logger *logrus.Entry) *TaskController {
	return &TaskController{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

type CreateTaskRequest struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description"`
	Priority    models.Priority `json:"priority" validate:"omitempty,enum"`
	Points      int             `json:"points" validate:"min=0,max=1000"`
	DueDate     string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	LeadID      *uint           `json:"lead_id"`
}

// CreateTask adds a standalone task to the board
func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input CreateTaskRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	input.Title = utils.SanitizeString(input.Title)
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if utf8.RuneCountInString(input.Title) > maxTaskTitle {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", fmt.Errorf("title must be at most %d characters", maxTaskTitle))
	}

	task := models.Task{
		UserID:      sess.UserID,
		Title:       input.Title,
		Description: utils.SanitizeString(input.Description),
		Status:      models.TaskStatusToDo,
		Priority:    input.Priority,
		Points:      input.Points,
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if input.DueDate != "" {
		due, err := time.Parse("2006-01-02", input.DueDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due date", err)
		}
		task.DueDate = &due
	}
	if input.LeadID != nil {
		var lead models.Lead
		if err := tc.DB.Where("id = ? AND user_id = ?", *input.LeadID, sess.UserID).First(&lead).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
			}
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
		}
		task.LeadID = &lead.ID
		task.LeadName = lead.FullName
	}

	err = tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			UserID:      sess.UserID,
			Type:        models.ActivityTaskCreated,
			Description: fmt.Sprintf("Task %q created", task.Title),
			Date:        time.Now(),
			EntityID:    task.ID,
			EntityType:  models.EntityTask,
			Actor:       sess.Owner(),
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create task", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(task))
}

// GetTasks lists tasks, filtered by status, lead, campaign or due=today
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	page, limit, offset := utils.Pagination(c)

	query := tc.DB.Model(&models.Task{}).Where("user_id = ?", sess.UserID)

	if status := c.Query("status"); status != "" {
		s, err := models.ParseTaskStatus(status)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", err)
		}
		query = query.Where("status = ?", s)
	}
	if leadID := c.QueryInt("lead_id"); leadID > 0 {
		query = query.Where("lead_id = ?", leadID)
	}
	if campaignID := c.QueryInt("campaign_id"); campaignID > 0 {
		query = query.Where("campaign_id = ?", campaignID)
	}
	if c.Query("due") == "today" {
		today := tc.Engine.Today()
		query = query.Where("due_date >= ? AND due_date < ? AND completed = ?", today, today.AddDate(0, 0, 1), false)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count tasks", err)
	}

	var tasks []models.Task
	if err := query.Order("due_date ASC, step_number ASC, id ASC").Offset(offset).Limit(limit).Find(&tasks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tasks", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  tasks,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid task ID", err)
	}

	task, err := tc.findTask(sess.UserID, id)
	if err != nil {
		return tc.taskError(c, err)
	}
	return c.JSON(utils.SuccessResponse(task))
}

// UpdateTaskStatus moves a task between board columns. Moving to Done
// completes it the same way the complete endpoint does.
func (tc *TaskController) UpdateTaskStatus(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid task ID", err)
	}

	var input struct {
		Status models.TaskStatus `json:"status" validate:"required,enum"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if _, err := tc.findTask(sess.UserID, id); err != nil {
		return tc.taskError(c, err)
	}

	task, err := tc.Engine.UpdateTaskStatus(c.UserContext(), id, input.Status, sess.Owner())
	if err != nil {
		return tc.taskError(c, err)
	}
	return c.JSON(utils.SuccessResponse(task))
}

// CompleteTask records an outcome and advances the task's campaign
func (tc *TaskController) CompleteTask(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid task ID", err)
	}

	var input struct {
		Outcome *models.Outcome `json:"outcome"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
		}
	}

	if _, err := tc.findTask(sess.UserID, id); err != nil {
		return tc.taskError(c, err)
	}

	result, err := tc.Engine.CompleteTask(c.UserContext(), id, input.Outcome, sess.Owner())
	if err != nil {
		return tc.taskError(c, err)
	}

	resp := fiber.Map{
		"task":               result.Task,
		"campaign_advanced":  result.CampaignAdvanced,
		"campaign_completed": result.CampaignCompleted,
	}
	if result.Campaign != nil {
		resp["campaign"] = result.Campaign
		resp["progress"] = tc.Engine.Progress(result.Campaign)
	}
	if result.LeadStatus != "" {
		resp["lead_status"] = result.LeadStatus
	}
	return c.JSON(utils.SuccessResponse(resp))
}

// GetTodaysTasks lists open campaign tasks due today for the caller's campaigns
func (tc *TaskController) GetTodaysTasks(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	tasks, err := tc.Engine.TodaysTasks(c.UserContext(), c.Query("owner"), tc.Engine.Now())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch today's tasks", err)
	}

	mine := make([]models.Task, 0, len(tasks))
	points := 0
	for _, t := range tasks {
		if t.UserID != sess.UserID {
			continue
		}
		mine = append(mine, t)
		points += t.Points
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"tasks":  mine,
		"count":  len(mine),
		"points": points,
	}))
}

func (tc *TaskController) findTask(userID, id uint) (*models.Task, error) {
	var task models.Task
	err := tc.DB.Where("id = ? AND user_id = ?", id, userID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, campaign.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (tc *TaskController) taskError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, campaign.ErrTaskNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	case errors.Is(err, campaign.ErrTaskAlreadyCompleted):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Task already completed", nil)
	case errors.Is(err, campaign.ErrInvalidOutcome), errors.Is(err, campaign.ErrInvalidStatus):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	utils.LogError("task_update", err, nil)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update task", nil)
}
