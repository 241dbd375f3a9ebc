package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/campaign"
	"runwayiq/config"
	"runwayiq/importer"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

const (
	sourceManual  = "Manual"
	maxUploadSize = 5 << 20
)

// SheetReader fetches the raw values of the configured lead spreadsheet
type SheetReader interface {
	Rows(ctx context.Context) ([][]interface{}, error)
	SpreadsheetID() string
}

type LeadController struct {
	DB       *gorm.DB
	Engine   *campaign.Engine
	Importer *importer.Importer
	Sheets   SheetReader
	Logger   *logrus.Entry
}

func NewLeadController(db *gorm.DB, engine *campaign.Engine, im *importer.Importer, sheets SheetReader, logger *logrus.Entry) *LeadController {
	return &LeadController{
		DB:       db,
		Engine:   engine,
		Importer: im,
		Sheets:   sheets,
		Logger:   logger,
	}
}

type CreateLeadRequest struct {
	FullName      string            `json:"full_name" validate:"required,max=200"`
	Email         string            `json:"email" validate:"required,email"`
	Phone         string            `json:"phone" validate:"omitempty,max=50"`
	Company       string            `json:"company" validate:"omitempty,max=200"`
	Title         string            `json:"title" validate:"omitempty,max=200"`
	LinkedInURL   string            `json:"linkedin_url" validate:"omitempty,url"`
	City          string            `json:"city" validate:"omitempty,max=100"`
	PropertyURL   string            `json:"property_url" validate:"omitempty,url"`
	Status        models.LeadStatus `json:"status" validate:"omitempty,enum"`
	Priority      models.Priority   `json:"priority" validate:"omitempty,enum"`
	Owner         string            `json:"owner" validate:"omitempty,max=100"`
	Notes         string            `json:"notes"`
	StartCampaign bool              `json:"start_campaign"`
}

// CreateLead adds a lead by hand and optionally starts its outreach campaign
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var input CreateLeadRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	email := input.Email
	var existing int64
	if err := lc.DB.Model(&models.Lead{}).Where("user_id = ? AND LOWER(email) = ?", sess.UserID, email).Count(&existing).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check existing leads", err)
	}
	if existing > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead with this email already exists", nil)
	}

	lead := models.Lead{
		UserID:      sess.UserID,
		FullName:    utils.SanitizeString(input.FullName),
		Email:       email,
		Phone:       input.Phone,
		Company:     utils.SanitizeString(input.Company),
		Title:       utils.SanitizeString(input.Title),
		LinkedInURL: input.LinkedInURL,
		City:        input.City,
		PropertyURL: input.PropertyURL,
		Status:      input.Status,
		Priority:    input.Priority,
		Owner:       input.Owner,
		Notes:       utils.SanitizeString(input.Notes),
		Source:      sourceManual,
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}
	if lead.Priority == "" {
		lead.Priority = models.PriorityMedium
	}
	if lead.Owner == "" {
		lead.Owner = sess.Owner()
	}

	err = lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&lead).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			UserID:      sess.UserID,
			Type:        models.ActivityLeadCreated,
			Description: fmt.Sprintf("Lead %s created", lead.FullName),
			Date:        time.Now(),
			EntityID:    lead.ID,
			EntityType:  models.EntityLead,
			Actor:       sess.Owner(),
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", err)
	}

	var camp *models.Campaign
	if input.StartCampaign {
		camp, _, err = lc.Engine.CreateCampaign(c.UserContext(), &lead, lead.Owner)
		if err != nil {
			utils.LogError("campaign_create", err, map[string]interface{}{"lead_id": lead.ID})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Lead created but campaign could not be started", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"lead":     lead,
		"campaign": camp,
	}))
}

// GetLeads returns leads with pagination and filtering
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	page, limit, offset := utils.Pagination(c)

	query := lc.DB.Model(&models.Lead{}).Where("user_id = ?", sess.UserID)

	if status := c.Query("status"); status != "" {
		s, err := models.ParseLeadStatus(status)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", err)
		}
		query = query.Where("status = ?", s)
	}
	if owner := c.Query("owner"); owner != "" {
		query = query.Where("owner = ?", owner)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company) LIKE ?", like, like, like)
	}
	switch c.Query("campaign") {
	case "none":
		query = query.Where("campaign_id IS NULL")
	case "any":
		query = query.Where("campaign_id IS NOT NULL")
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count leads", err)
	}

	var leads []models.Lead
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLead returns a single lead with its recent activity
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", err)
	}

	lead, err := lc.findLead(sess.UserID, id)
	if err != nil {
		return lc.leadError(c, err)
	}

	var activities []models.Activity
	if err := lc.DB.Where("entity_type = ? AND entity_id = ?", models.EntityLead, lead.ID).
		Order("date DESC").Limit(50).Find(&activities).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead activity", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"lead":       lead,
		"activities": activities,
	}))
}

// UpdateLeadStatus moves a lead through the pipeline and logs the change
func (lc *LeadController) UpdateLeadStatus(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", err)
	}

	var input struct {
		Status models.LeadStatus `json:"status" validate:"required,enum"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	lead, err := lc.findLead(sess.UserID, id)
	if err != nil {
		return lc.leadError(c, err)
	}
	if lead.Status == input.Status {
		return c.JSON(utils.SuccessResponse(lead))
	}

	previous := lead.Status
	err = lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(lead).Update("status", input.Status).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			UserID:      sess.UserID,
			Type:        models.ActivityLeadStatusChanged,
			Description: fmt.Sprintf("Lead status changed from %s to %s", previous, input.Status),
			Date:        time.Now(),
			EntityID:    lead.ID,
			EntityType:  models.EntityLead,
			Actor:       sess.Owner(),
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead status", err)
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// ImportLeads imports leads from an uploaded CSV file
func (lc *LeadController) ImportLeads(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No file uploaded", err)
	}

	// Check file size (max 5MB)
	if file.Size > maxUploadSize {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 5MB)", nil)
	}
	if !strings.HasSuffix(strings.ToLower(file.Filename), ".csv") {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Only CSV files are supported", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	rows, rowErrs, err := importer.ParseCSV(src)
	switch {
	case errors.Is(err, importer.ErrNoRows):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV file must have a header and at least one row", nil)
	case errors.Is(err, importer.ErrMissingHeader):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV file is missing a required column", err)
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV file", err)
	}

	result, err := lc.Importer.Import(c.UserContext(), rows, importer.Options{
		UserID:         sess.UserID,
		Owner:          sess.Owner(),
		Source:         importer.SourceCSV,
		StartCampaigns: c.QueryBool("start_campaigns"),
	})
	if err != nil {
		utils.LogError("lead_import", err, map[string]interface{}{"user_id": sess.UserID, "file": file.Filename})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import leads", nil)
	}
	result.AddRowErrors(rowErrs)

	return c.JSON(utils.SuccessResponse(result))
}

// PreviewSheet shows the rows the configured spreadsheet would import
func (lc *LeadController) PreviewSheet(c *fiber.Ctx) error {
	if _, err := session.FromCtx(c); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	if lc.Sheets == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, config.NotConfigured("Google Sheets").Error(), nil)
	}

	values, err := lc.Sheets.Rows(c.UserContext())
	if err != nil {
		utils.RecordIntegrationError("sheets")
		utils.LogError("sheets_read", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read spreadsheet", nil)
	}
	rows, rowErrs := importer.SheetRowsToLeads(values)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"spreadsheet_id": lc.Sheets.SpreadsheetID(),
		"rows":           rows,
		"errors":         rowErrs,
		"count":          len(rows),
	}))
}

// ImportSheet imports every valid row of the configured spreadsheet
func (lc *LeadController) ImportSheet(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}
	if lc.Sheets == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, config.NotConfigured("Google Sheets").Error(), nil)
	}

	values, err := lc.Sheets.Rows(c.UserContext())
	if err != nil {
		utils.RecordIntegrationError("sheets")
		utils.LogError("sheets_read", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read spreadsheet", nil)
	}
	rows, rowErrs := importer.SheetRowsToLeads(values)
	if len(rows) == 0 && len(rowErrs) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Spreadsheet has no lead rows", nil)
	}

	result, err := lc.Importer.Import(c.UserContext(), rows, importer.Options{
		UserID:         sess.UserID,
		Owner:          sess.Owner(),
		Source:         importer.SourceSheets,
		StartCampaigns: c.QueryBool("start_campaigns"),
	})
	if err != nil {
		utils.LogError("lead_import", err, map[string]interface{}{"user_id": sess.UserID, "source": importer.SourceSheets})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import leads", nil)
	}
	result.AddRowErrors(rowErrs)

	return c.JSON(utils.SuccessResponse(result))
}

func (lc *LeadController) findLead(userID, id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := lc.DB.Where("id = ? AND user_id = ?", id, userID).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (lc *LeadController) leadError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
}
