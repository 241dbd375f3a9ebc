package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"runwayiq/campaign"
	"runwayiq/models"
	"runwayiq/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	SourceCSV    = "CSV Import"
	SourceSheets = "Google Sheets Import"
)

// Options controls how imported rows are persisted
type Options struct {
	UserID         uint
	Owner          string
	Source         string
	StartCampaigns bool
}

// ImportResult mirrors what the upload endpoint reports
type ImportResult struct {
	Count            int           `json:"count"`
	Errors           []string      `json:"errors"`
	CampaignsCreated int           `json:"campaigns_created"`
	Leads            []models.Lead `json:"leads"`
	Message          string        `json:"message"`
}

type Importer struct {
	DB     *gorm.DB
	Engine *campaign.Engine
	Logger *logrus.Entry
	now    func() time.Time
}

func NewImporter(db *gorm.DB, engine *campaign.Engine, logger *logrus.Entry) *Importer {
	if logger == nil {
		logger = utils.Logger("import")
	}
	return &Importer{DB: db, Engine: engine, Logger: logger, now: time.Now}
}

// Import persists each row as a lead with a Lead Created activity. Failures
// are collected per lead and never abort the rest of the import.
func (im *Importer) Import(ctx context.Context, rows []LeadRow, opts Options) (*ImportResult, error) {
	if opts.Source == "" {
		opts.Source = SourceCSV
	}
	result := &ImportResult{Errors: []string{}, Leads: []models.Lead{}}

	existing, err := im.existingEmails(ctx, opts.UserID, rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		key := strings.ToLower(row.Email)
		if existing[key] {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Lead with email %s already exists", row.Row, row.Email))
			continue
		}

		lead := im.toLead(row, opts)
		if err := im.createLead(ctx, &lead, opts.Owner); err != nil {
			im.Logger.WithError(err).WithField("row", row.Row).Warn("Failed to create lead")
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to create lead: %s", row.FullName))
			continue
		}
		existing[key] = true
		result.Count++

		if opts.StartCampaigns && im.Engine != nil {
			if _, _, err := im.Engine.CreateCampaign(ctx, &lead, lead.Owner); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Failed to create campaign for %s: %v", lead.FullName, err))
			} else {
				result.CampaignsCreated++
			}
		}
		result.Leads = append(result.Leads, lead)
	}

	result.Message = result.summary()

	utils.RecordLeadsImported(opts.Source, result.Count)
	im.Logger.WithFields(logrus.Fields{
		"source":    opts.Source,
		"imported":  result.Count,
		"errors":    len(result.Errors),
		"campaigns": result.CampaignsCreated,
	}).Info("Lead import finished")
	return result, nil
}

// AddRowErrors puts validation errors from parsing ahead of the import errors
func (r *ImportResult) AddRowErrors(errs []string) {
	if len(errs) == 0 {
		return
	}
	r.Errors = append(append([]string{}, errs...), r.Errors...)
	r.Message = r.summary()
}

func (r *ImportResult) summary() string {
	msg := fmt.Sprintf("Successfully imported %d leads", r.Count)
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf(" with %d errors", len(r.Errors))
	}
	return msg
}

func (im *Importer) toLead(row LeadRow, opts Options) models.Lead {
	owner := row.Owner
	if owner == "" {
		owner = opts.Owner
	}
	label := "CSV"
	if opts.Source == SourceSheets {
		label = "Google Sheets"
	}
	return models.Lead{
		UserID:      opts.UserID,
		FullName:    row.FullName,
		Email:       strings.ToLower(row.Email),
		Phone:       row.Phone,
		Company:     row.Company,
		Title:       row.Title,
		LinkedInURL: row.LinkedInURL,
		City:        row.City,
		PropertyURL: row.PropertyURL,
		Status:      row.Status,
		Campaign:    row.Campaign,
		Source:      opts.Source,
		Priority:    models.PriorityMedium,
		Owner:       owner,
		Notes:       fmt.Sprintf("Imported from %s on %s", label, im.now().Format("2006-01-02")),
	}
}

func (im *Importer) createLead(ctx context.Context, lead *models.Lead, actor string) error {
	return im.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lead).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			UserID:      lead.UserID,
			Type:        models.ActivityLeadCreated,
			Description: fmt.Sprintf("Lead %s created from %s", lead.FullName, lead.Source),
			Date:        im.now(),
			EntityID:    lead.ID,
			EntityType:  models.EntityLead,
			Actor:       actor,
		}).Error
	})
}

func (im *Importer) existingEmails(ctx context.Context, userID uint, rows []LeadRow) (map[string]bool, error) {
	seen := make(map[string]bool, len(rows))
	if len(rows) == 0 {
		return seen, nil
	}
	emails := make([]string, 0, len(rows))
	for _, r := range rows {
		emails = append(emails, strings.ToLower(r.Email))
	}

	var found []string
	if err := im.DB.WithContext(ctx).Model(&models.Lead{}).
		Where("user_id = ? AND LOWER(email) IN ?", userID, emails).
		Pluck("LOWER(email)", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing leads: %w", err)
	}
	for _, e := range found {
		seen[e] = true
	}
	return seen, nil
}
