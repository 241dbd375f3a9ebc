package models

import "gorm.io/gorm"

// DefaultSystemPrompt is used by agents created without a prompt
const DefaultSystemPrompt = "You are a professional sales representative. Be polite, conversational, and focus on understanding the prospect's needs."

// All lists every entity handled by AutoMigrate
func All() []interface{} {
	return []interface{}{
		&User{},
		&Lead{},
		&Campaign{},
		&Task{},
		&Activity{},
		&AIAgent{},
		&CallingCampaign{},
		&CallingLead{},
		&Call{},
		&CallTranscript{},
		&CallQueueItem{},
	}
}

// CreateDefaultAgent gives a user a ready-to-use calling agent
func CreateDefaultAgent(db *gorm.DB, userID uint) error {
	agent := AIAgent{
		UserID:       userID,
		Name:         "Default Agent",
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  0.7,
		MaxTokens:    150,
		IsActive:     true,
	}
	return db.Where("user_id = ? AND name = ?", userID, agent.Name).FirstOrCreate(&agent).Error
}
