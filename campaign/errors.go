package campaign

import "errors"

var (
	ErrLeadHasNoID          = errors.New("lead has no identifier")
	ErrLeadHasCampaign      = errors.New("lead already has a campaign")
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrCampaignCompleted    = errors.New("campaign already completed")
	ErrInvalidOutcome       = errors.New("invalid outcome")
	ErrInvalidStatus        = errors.New("invalid task status")
	ErrInvalidTemplate      = errors.New("invalid campaign template")
)
