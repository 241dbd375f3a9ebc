package models

import (
	"gorm.io/gorm"
)

// Lead represents a single prospect in the sales pipeline
type Lead struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	FullName    string `gorm:"not null" json:"full_name"`
	Email       string `gorm:"not null;index" json:"email"`
	Phone       string `json:"phone"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	LinkedInURL string `json:"linkedin_url"`
	City        string `json:"city"`
	PropertyURL string `json:"property_url"`

	// Pipeline
	Status   LeadStatus `gorm:"default:'New';index" json:"status"`
	Campaign string     `json:"campaign"` // free-text label from imports
	Source   string     `json:"source"`   // CSV Import, Google Sheets Import, manual
	Priority Priority   `gorm:"default:'Medium'" json:"priority"`
	Owner    string     `gorm:"index" json:"owner"`
	Notes    string     `gorm:"type:text" json:"notes"`

	// Set once an outreach campaign has been instantiated for the lead
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`
}

// TemplateData is the view of a lead exposed to step title and description templates
type TemplateData struct {
	FullName    string
	Email       string
	Phone       string
	Company     string
	Title       string
	LinkedInURL string
	PropertyURL string
	City        string
}

func (l *Lead) TemplateData() TemplateData {
	return TemplateData{
		FullName:    l.FullName,
		Email:       l.Email,
		Phone:       l.Phone,
		Company:     l.Company,
		Title:       l.Title,
		LinkedInURL: l.LinkedInURL,
		PropertyURL: l.PropertyURL,
		City:        l.City,
	}
}
