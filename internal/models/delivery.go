package models

import "time"

// DeliveryStatus is the outcome of one recipient attempt
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
	DeliveryClicked DeliveryStatus = "CLICKED"
)

// Valid reports whether s is a known delivery status
func (s DeliveryStatus) Valid() bool {
	return s == DeliverySent || s == DeliveryFailed || s == DeliveryClicked
}

// DeliveryLogEntry records the outcome of sending to one recipient within one job
type DeliveryLogEntry struct {
	ID             string         `json:"id"`
	JobID          string         `json:"job_id"`
	CampaignID     string         `json:"campaign_id"`
	RecipientID    string         `json:"recipient_id"`
	RecipientName  string         `json:"recipient_name"`
	RecipientEmail string         `json:"recipient_email"`
	RecipientPhone string         `json:"recipient_phone"`
	Status         DeliveryStatus `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
	ClickedAt      *time.Time     `json:"clicked_at,omitempty"`
}

// DeliveryLogFilter for listing delivery log entries
type DeliveryLogFilter struct {
	JobID      string
	CampaignID string
	Status     DeliveryStatus
}

// DeliveryStats aggregates delivery outcomes.
// Clicked entries were sent, so Sent counts them too.
type DeliveryStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Clicked int `json:"clicked"`
}
