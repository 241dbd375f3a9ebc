package models

import (
	"time"

	"gorm.io/gorm"
)

// Activity is an append-only log entry about a task, lead or campaign
type Activity struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Type        ActivityType `gorm:"not null;index" json:"type"`
	Description string       `gorm:"type:text" json:"description"`
	Date        time.Time    `gorm:"not null;index" json:"date"`
	EntityID    uint         `gorm:"not null;index" json:"entity_id"`
	EntityType  EntityType   `gorm:"not null;index" json:"entity_type"`
	Outcome     string       `json:"outcome,omitempty"`
	Actor       string       `json:"actor,omitempty"`
}
