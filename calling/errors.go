package calling

import "errors"

var (
	ErrCampaignNotFound  = errors.New("calling campaign not found")
	ErrCallNotFound      = errors.New("call not found")
	ErrQueueItemNotFound = errors.New("call queue item not found")
	ErrAgentNotFound     = errors.New("AI agent not found")
	ErrNoLeads           = errors.New("campaign has no queued leads")
	ErrInvalidTransition = errors.New("campaign cannot change to that status")
	ErrCampaignNotActive = errors.New("campaign is not active")
)
