package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LeadStatus is the sales pipeline position of a lead.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "New"
	LeadStatusContacted     LeadStatus = "Contacted"
	LeadStatusQualified     LeadStatus = "Qualified"
	LeadStatusDemoScheduled LeadStatus = "Demo Scheduled"
	LeadStatusDemoCompleted LeadStatus = "Demo Completed"
	LeadStatusProposalSent  LeadStatus = "Proposal Sent"
	LeadStatusClosedWon     LeadStatus = "Closed Won"
	LeadStatusClosedLost    LeadStatus = "Closed Lost"
)

var leadStatuses = []LeadStatus{
	LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusDemoScheduled,
	LeadStatusDemoCompleted, LeadStatusProposalSent, LeadStatusClosedWon, LeadStatusClosedLost,
}

func (s LeadStatus) Valid() bool { return contains(leadStatuses, s) }

func ParseLeadStatus(v string) (LeadStatus, error) { return parseEnum(leadStatuses, "lead status", v) }

func (s *LeadStatus) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, leadStatuses, "lead status", s) }

// CampaignStatus is the lifecycle of an outreach campaign.
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "Active"
	CampaignStatusPaused    CampaignStatus = "Paused"
	CampaignStatusCompleted CampaignStatus = "Completed"
)

var campaignStatuses = []CampaignStatus{CampaignStatusActive, CampaignStatusPaused, CampaignStatusCompleted}

func (s CampaignStatus) Valid() bool { return contains(campaignStatuses, s) }

func ParseCampaignStatus(v string) (CampaignStatus, error) {
	return parseEnum(campaignStatuses, "campaign status", v)
}

func (s *CampaignStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, campaignStatuses, "campaign status", s)
}

// TaskStatus is the board column of a task.
type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "To Do"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusDone       TaskStatus = "Done"
	TaskStatusArchived   TaskStatus = "Archived"
)

var taskStatuses = []TaskStatus{TaskStatusToDo, TaskStatusInProgress, TaskStatusDone, TaskStatusArchived}

func (s TaskStatus) Valid() bool { return contains(taskStatuses, s) }

func ParseTaskStatus(v string) (TaskStatus, error) { return parseEnum(taskStatuses, "task status", v) }

func (s *TaskStatus) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, taskStatuses, "task status", s) }

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

var priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool { return contains(priorities, p) }

func ParsePriority(v string) (Priority, error) { return parseEnum(priorities, "priority", v) }

func (p *Priority) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, priorities, "priority", p) }

// Channel is the outreach medium of a touchpoint.
type Channel string

const (
	ChannelCall       Channel = "Call"
	ChannelEmail      Channel = "Email"
	ChannelLinkedInDM Channel = "LinkedIn DM"
)

var channels = []Channel{ChannelCall, ChannelEmail, ChannelLinkedInDM}

func (c Channel) Valid() bool { return contains(channels, c) }

func ParseChannel(v string) (Channel, error) { return parseEnum(channels, "channel", v) }

func (c *Channel) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, channels, "channel", c) }

func (c *Channel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseChannel(raw)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Outcome is the fixed-vocabulary result recorded on task completion.
type Outcome string

const (
	OutcomeNoAnswer               Outcome = "No answer"
	OutcomeNotInterested          Outcome = "Not interested"
	OutcomeSpeakLater             Outcome = "Speak later"
	OutcomeLaterDateFollowUp      Outcome = "Later date follow-up"
	OutcomeUsingCompetitor        Outcome = "Using competitor"
	OutcomeWantsMarketingMaterial Outcome = "Wants marketing material"
	OutcomeRemoveFromCallingList  Outcome = "Remove from calling list"
	OutcomeBookedDemo             Outcome = "Booked demo"
)

var outcomes = []Outcome{
	OutcomeNoAnswer, OutcomeNotInterested, OutcomeSpeakLater, OutcomeLaterDateFollowUp,
	OutcomeUsingCompetitor, OutcomeWantsMarketingMaterial, OutcomeRemoveFromCallingList, OutcomeBookedDemo,
}

func (o Outcome) Valid() bool { return contains(outcomes, o) }

func ParseOutcome(v string) (Outcome, error) { return parseEnum(outcomes, "outcome", v) }

func (o *Outcome) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, outcomes, "outcome", o) }

// Outcomes lists the outcome vocabulary in display order.
func Outcomes() []Outcome { return append([]Outcome(nil), outcomes...) }

type ActivityType string

const (
	ActivityTaskCreated       ActivityType = "Task Created"
	ActivityTaskCompleted     ActivityType = "Task Completed"
	ActivityLeadCreated       ActivityType = "Lead Created"
	ActivityLeadStatusChanged ActivityType = "Lead Status Changed"
	ActivityCampaignCreated   ActivityType = "Campaign Created"
	ActivityCampaignPaused    ActivityType = "Campaign Paused"
	ActivityCampaignResumed   ActivityType = "Campaign Resumed"
	ActivityCampaignCompleted ActivityType = "Campaign Completed"
	ActivityNote              ActivityType = "Note"
)

var activityTypes = []ActivityType{
	ActivityTaskCreated, ActivityTaskCompleted, ActivityLeadCreated, ActivityLeadStatusChanged,
	ActivityCampaignCreated, ActivityCampaignPaused, ActivityCampaignResumed, ActivityCampaignCompleted,
	ActivityNote,
}

func (a ActivityType) Valid() bool { return contains(activityTypes, a) }

func (a *ActivityType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, activityTypes, "activity type", a)
}

type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityLead     EntityType = "lead"
	EntityCompany  EntityType = "company"
	EntityCampaign EntityType = "campaign"
)

var entityTypes = []EntityType{EntityTask, EntityLead, EntityCompany, EntityCampaign}

func (e EntityType) Valid() bool { return contains(entityTypes, e) }

func ParseEntityType(v string) (EntityType, error) { return parseEnum(entityTypes, "entity type", v) }

func (e *EntityType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, entityTypes, "entity type", e)
}

// Cold calling vocabularies

type CallingCampaignStatus string

const (
	CallingCampaignDraft     CallingCampaignStatus = "draft"
	CallingCampaignActive    CallingCampaignStatus = "active"
	CallingCampaignPaused    CallingCampaignStatus = "paused"
	CallingCampaignCompleted CallingCampaignStatus = "completed"
)

var callingCampaignStatuses = []CallingCampaignStatus{
	CallingCampaignDraft, CallingCampaignActive, CallingCampaignPaused, CallingCampaignCompleted,
}

func (s CallingCampaignStatus) Valid() bool { return contains(callingCampaignStatuses, s) }

type CallingLeadStatus string

const (
	CallingLeadQueued        CallingLeadStatus = "queued"
	CallingLeadCalling       CallingLeadStatus = "calling"
	CallingLeadContacted     CallingLeadStatus = "contacted"
	CallingLeadInterested    CallingLeadStatus = "interested"
	CallingLeadNotInterested CallingLeadStatus = "not_interested"
	CallingLeadCallback      CallingLeadStatus = "callback"
	CallingLeadDoNotCall     CallingLeadStatus = "do_not_call"
	CallingLeadCompleted     CallingLeadStatus = "completed"
)

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no_answer"
)

// ParseTwilioCallStatus maps Twilio's CallStatus values onto CallStatus.
func ParseTwilioCallStatus(v string) (CallStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "queued", "initiated":
		return CallStatusQueued, nil
	case "ringing":
		return CallStatusRinging, nil
	case "in-progress", "in_progress", "answered":
		return CallStatusInProgress, nil
	case "completed":
		return CallStatusCompleted, nil
	case "failed", "canceled":
		return CallStatusFailed, nil
	case "busy":
		return CallStatusBusy, nil
	case "no-answer", "no_answer":
		return CallStatusNoAnswer, nil
	}
	return "", fmt.Errorf("unknown call status %q", v)
}

// Final reports whether Twilio will send no further updates for the call.
func (s CallStatus) Final() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer:
		return true
	}
	return false
}

type Speaker string

const (
	SpeakerAI    Speaker = "ai"
	SpeakerHuman Speaker = "human"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusRetrying   QueueStatus = "retrying"
)

func contains[T ~string](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func parseEnum[T ~string](set []T, name, v string) (T, error) {
	v = strings.TrimSpace(v)
	for _, s := range set {
		if strings.EqualFold(string(s), v) {
			return s, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", name, v)
}

func unmarshalEnum[T ~string](b []byte, set []T, name string, dst *T) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%s must be a string", name)
	}
	v, err := parseEnum(set, name, raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
