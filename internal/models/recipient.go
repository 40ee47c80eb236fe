package models

import "time"

// Recipient is a customer read from the directory
type Recipient struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	District   string    `json:"district,omitempty"`
	Thana      string    `json:"thana,omitempty"`
	Subscribed bool      `json:"subscribed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Order is a customer order as seen by segment evaluation
type Order struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Total      float64   `json:"total"`
	Status     string    `json:"status"`
	Categories []string  `json:"categories,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Order statuses that do not count towards segments
const (
	OrderCancelled = "cancelled"
	OrderRefunded  = "refunded"
)
