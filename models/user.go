package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account that owns leads, campaigns and tasks
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Profile information
	Name     string `json:"name"`
	Timezone string `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Profile is the cached projection of a User carried by sessions
type Profile struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

func (u *User) Profile() Profile {
	return Profile{UserID: u.ID, Email: u.Email, Name: u.Name}
}

// DisplayName is the owner label stamped on leads and campaigns
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
