package models

import (
	"time"

	"gorm.io/gorm"
)

// AIAgent is the persona an outbound call is conducted with
type AIAgent struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name         string  `gorm:"not null" json:"name"`
	SystemPrompt string  `gorm:"type:text" json:"system_prompt"`
	VoiceID      string  `json:"voice_id"`
	Temperature  float32 `gorm:"default:0.7" json:"temperature"`
	MaxTokens    int     `gorm:"default:150" json:"max_tokens"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`
}

// CallingCampaign groups calling leads dialed by one agent
type CallingCampaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string                `gorm:"not null" json:"name"`
	Description string                `json:"description"`
	AIAgentID   *uint                 `json:"ai_agent_id,omitempty"`
	Status      CallingCampaignStatus `gorm:"default:'draft';index" json:"status"`
	StartDate   *time.Time            `json:"start_date,omitempty"`
	EndDate     *time.Time            `json:"end_date,omitempty"`

	// Statistics (denormalized)
	TotalLeads      int `gorm:"default:0" json:"total_leads"`
	CallsMade       int `gorm:"default:0" json:"calls_made"`
	CallsConnected  int `gorm:"default:0" json:"calls_connected"`
	CallsInterested int `gorm:"default:0" json:"calls_interested"`

	// Relations
	AIAgent *AIAgent      `json:"ai_agent,omitempty"`
	Leads   []CallingLead `gorm:"foreignKey:CampaignID" json:"leads,omitempty"`
}

// CallingLead is a phone contact queued for a calling campaign
type CallingLead struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	UserID     uint `gorm:"not null;index" json:"user_id"`

	FullName    string            `gorm:"not null" json:"full_name"`
	Email       string            `json:"email"`
	Phone       string            `gorm:"not null" json:"phone"`
	Company     string            `json:"company"`
	Title       string            `json:"title"`
	LinkedInURL string            `json:"linkedin_url"`
	Status      CallingLeadStatus `gorm:"default:'queued';index" json:"status"`
	Priority    int               `gorm:"default:1" json:"priority"`
	Notes       string            `gorm:"type:text" json:"notes"`

	CallAttempts int        `gorm:"default:0" json:"call_attempts"`
	LastCallDate *time.Time `json:"last_call_date,omitempty"`
}

// Call is one outbound dial attempt
type Call struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	UserID     uint `gorm:"not null;index" json:"user_id"`

	TwilioCallSID   string     `gorm:"column:twilio_call_sid;index" json:"twilio_call_sid,omitempty"`
	Status          CallStatus `gorm:"default:'queued'" json:"status"`
	Direction       string     `gorm:"default:'outbound'" json:"direction"`
	FromNumber      string     `json:"from_number"`
	ToNumber        string     `json:"to_number"`
	DurationSeconds int        `gorm:"default:0" json:"duration_seconds"`
	RecordingURL    string     `json:"recording_url,omitempty"`

	// Post-call analysis
	CallOutcome   string `json:"call_outcome,omitempty"` // interested, not_interested, callback_requested, voicemail, no_answer
	InterestLevel int    `json:"interest_level,omitempty"`
	Summary       string `gorm:"type:text" json:"summary,omitempty"`
	Sentiment     string `json:"sentiment,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Relations
	Lead        *CallingLead     `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
	Campaign    *CallingCampaign `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
	Transcripts []CallTranscript `gorm:"foreignKey:CallID" json:"transcripts,omitempty"`
}

// CallTranscript is one utterance within a call
type CallTranscript struct {
	gorm.Model
	CallID           uint    `gorm:"not null;index" json:"call_id"`
	Speaker          Speaker `gorm:"not null" json:"speaker"`
	Message          string  `gorm:"type:text" json:"message"`
	TimestampSeconds int     `json:"timestamp_seconds"`
	Confidence       float64 `json:"confidence"`
}

// CallQueueItem tracks a pending dial for a calling lead
type CallQueueItem struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	UserID     uint `gorm:"not null;index" json:"user_id"`

	Status       QueueStatus `gorm:"default:'pending';index" json:"status"`
	Priority     int         `gorm:"default:1" json:"priority"`
	ScheduledAt  time.Time   `gorm:"not null" json:"scheduled_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	RetryCount   int         `gorm:"default:0" json:"retry_count"`
	MaxRetries   int         `gorm:"default:3" json:"max_retries"`
	CallID       *uint       `json:"call_id,omitempty"`
}

func (q *CallQueueItem) CanRetry() bool {
	return q.RetryCount < q.MaxRetries
}
