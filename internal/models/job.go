package models

import "time"

// JobMode is the trigger that started a job
type JobMode string

const (
	JobModeTest          JobMode = "TEST"
	JobModeSendNow       JobMode = "SEND_NOW"
	JobModeScheduledFire JobMode = "SCHEDULED_FIRE"
)

// Valid reports whether m is a known mode
func (m JobMode) Valid() bool {
	switch m {
	case JobModeTest, JobModeSendNow, JobModeScheduledFire:
		return true
	}
	return false
}

// JobStatus is the execution state of a job
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the job can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is one execution attempt of a campaign
type Job struct {
	ID              string     `json:"id"`
	CampaignID      string     `json:"campaign_id"`
	Mode            JobMode    `json:"mode"`
	Status          JobStatus  `json:"status"`
	TotalRecipients *int       `json:"total_recipients"` // nil until the audience is resolved
	ProgressCount   int        `json:"progress_count"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}
