package models

import (
	"time"

	"gorm.io/gorm"
)

// Task is a unit of work on the board, usually one campaign touchpoint
type Task struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Status      TaskStatus `gorm:"default:'To Do';index" json:"status"`
	Priority    Priority   `gorm:"default:'Medium'" json:"priority"`
	Points      int        `gorm:"default:0" json:"points"`
	DueDate     *time.Time `gorm:"type:date;index" json:"due_date"`

	// Completion
	Completed   bool       `gorm:"default:false;index" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Outcome     *Outcome   `json:"outcome,omitempty"`

	// Back references
	LeadID     *uint   `gorm:"index" json:"lead_id,omitempty"`
	LeadName   string  `json:"lead_name,omitempty"`
	CampaignID *uint   `gorm:"index" json:"campaign_id,omitempty"`
	StepNumber int     `json:"step_number,omitempty"`
	TaskType   Channel `json:"task_type,omitempty"`
}
