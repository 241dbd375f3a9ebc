package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/campaign"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

type DashboardController struct {
	DB     *gorm.DB
	Engine *campaign.Engine
	Logger *logrus.Entry
}

func NewDashboardController(db *gorm.DB, engine *campaign.Engine, logger *logrus.Entry) *DashboardController {
	return &DashboardController{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

type DashboardStats struct {
	LeadsByStatus   map[models.LeadStatus]int64 `json:"leads_by_status"`
	TotalLeads      int64                       `json:"total_leads"`
	OpenTasks       int64                       `json:"open_tasks"`
	DoneTasks       int64                       `json:"done_tasks"`
	TasksDueToday   int64                       `json:"tasks_due_today"`
	PointsToday     int64                       `json:"points_today"`
	PointsThisWeek  int64                       `json:"points_this_week"`
	ActiveCampaigns int64                       `json:"active_campaigns"`
	CallsToday      int64                       `json:"calls_today"`
	ConnectedToday  int64                       `json:"connected_today"`
}

// GetDashboardStats returns summary statistics for the dashboard cards
func (dc *DashboardController) GetDashboardStats(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	loc := dc.Engine.Location()
	today := dc.Engine.Today()
	dayStart := utils.InLocation(today, loc)
	// Weeks start on Monday
	weekday := (int(today.Weekday()) + 6) % 7
	weekStart := dayStart.AddDate(0, 0, -weekday)

	stats := DashboardStats{LeadsByStatus: map[models.LeadStatus]int64{}}

	var byStatus []struct {
		Status models.LeadStatus
		Count  int64
	}
	if err := dc.DB.Model(&models.Lead{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", sess.UserID).
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get lead stats", err)
	}
	for _, row := range byStatus {
		stats.LeadsByStatus[row.Status] = row.Count
		stats.TotalLeads += row.Count
	}

	tasks := func() *gorm.DB {
		return dc.DB.Model(&models.Task{}).Where("user_id = ?", sess.UserID)
	}
	if err := tasks().Where("completed = ?", false).Count(&stats.OpenTasks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get task stats", err)
	}
	if err := tasks().Where("completed = ?", true).Count(&stats.DoneTasks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get task stats", err)
	}
	if err := tasks().Where("completed = ? AND due_date >= ? AND due_date < ?", false, today, today.AddDate(0, 0, 1)).
		Count(&stats.TasksDueToday).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get task stats", err)
	}

	if err := tasks().Where("completed = ? AND completed_at >= ?", true, dayStart).
		Select("COALESCE(SUM(points), 0)").Scan(&stats.PointsToday).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get points", err)
	}
	if err := tasks().Where("completed = ? AND completed_at >= ?", true, weekStart).
		Select("COALESCE(SUM(points), 0)").Scan(&stats.PointsThisWeek).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get points", err)
	}

	if err := dc.DB.Model(&models.Campaign{}).
		Where("user_id = ? AND status = ?", sess.UserID, models.CampaignStatusActive).
		Count(&stats.ActiveCampaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get campaign stats", err)
	}

	calls := func() *gorm.DB {
		return dc.DB.Model(&models.Call{}).Where("user_id = ? AND created_at >= ?", sess.UserID, dayStart)
	}
	if err := calls().Count(&stats.CallsToday).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get call stats", err)
	}
	if err := calls().Where("status = ? AND duration_seconds > 0", models.CallStatusCompleted).
		Count(&stats.ConnectedToday).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get call stats", err)
	}

	return c.JSON(utils.SuccessResponse(stats))
}
