package models

import "time"

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignDeleted   CampaignStatus = "deleted"
)

// Valid reports whether s is a known status
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted, CampaignDeleted:
		return true
	}
	return false
}

// campaignTransitions lists allowed moves; deletion is handled separately
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:  {CampaignActive},
	CampaignActive: {CampaignPaused, CampaignCompleted},
	CampaignPaused: {CampaignActive},
}

// CanTransition reports whether a campaign may move from one status to another
func CanTransition(from, to CampaignStatus) bool {
	if from == CampaignDeleted {
		return false
	}
	if to == CampaignDeleted {
		return true
	}
	for _, s := range campaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Message is the content pushed to every recipient
type Message struct {
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
	ImageURL  string `json:"image_url,omitempty"`
	TargetURL string `json:"target_url,omitempty"`
}

// Campaign represents a notification campaign
type Campaign struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Message     Message         `json:"message"`
	Segment     AudienceSegment `json:"segment"`
	Status      CampaignStatus  `json:"status"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	Automated   bool            `json:"automated"`

	// LastDispatchedScheduledAt is the scheduled occurrence the scheduler
	// last fired for; it stops the same occurrence from firing twice.
	LastDispatchedScheduledAt *time.Time `json:"last_dispatched_scheduled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CampaignInput holds the operator input for a new campaign
type CampaignInput struct {
	Name        string          `json:"name"`
	Message     Message         `json:"message"`
	Segment     AudienceSegment `json:"segment"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	Automated   bool            `json:"automated"`
}

// CampaignPatch is a partial update; nil fields are left untouched
type CampaignPatch struct {
	Name          *string          `json:"name,omitempty"`
	Message       *Message         `json:"message,omitempty"`
	Segment       *AudienceSegment `json:"segment,omitempty"`
	ScheduledAt   *time.Time       `json:"scheduled_at,omitempty"`
	ClearSchedule bool             `json:"clear_schedule,omitempty"`
	Automated     *bool            `json:"automated,omitempty"`
}

// CampaignFilter for listing campaigns
type CampaignFilter struct {
	Query  string
	Status CampaignStatus
}

// CampaignStatusCounts holds the number of campaigns per status
type CampaignStatusCounts map[CampaignStatus]int
