package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign represents a multi-week outreach cadence for one lead
type Campaign struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Name     string `gorm:"not null" json:"name"`
	LeadID   uint   `gorm:"not null;index" json:"lead_id"`
	LeadName string `json:"lead_name"`
	Owner    string `gorm:"index" json:"owner"`

	// Scheduling
	StartDate    time.Time      `gorm:"type:date;not null" json:"start_date"`
	Status       CampaignStatus `gorm:"default:'Active';index" json:"status"`
	CurrentStep  int            `gorm:"not null;default:1" json:"current_step"`
	TotalSteps   int            `gorm:"not null" json:"total_steps"`
	TemplateName string         `json:"template_name"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`

	// Relations
	Tasks []Task `gorm:"foreignKey:CampaignID" json:"tasks,omitempty"`
}

func (c *Campaign) IsCompleted() bool {
	return c.Status == CampaignStatusCompleted
}
