package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourove-a/splaro/internal/config"
	bolt "go.etcd.io/bbolt"
)

var bucketCaptures = []byte("captures")

// Capture is a delivery recorded by the sandbox instead of being sent
type Capture struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	JobID        string    `json:"job_id"`
	Mode         string    `json:"mode"`
	RecipientID  string    `json:"recipient_id"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"body"`
	URL          string    `json:"url,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	SimulatedErr string    `json:"simulated_error,omitempty"`
}

// Sandbox captures deliveries into a bbolt file for staging and inspection.
// Deliveries to the configured error domain are captured and then failed.
type Sandbox struct {
	db            *bolt.DB
	simulateError string
	logger        *slog.Logger
}

// OpenSandbox opens (or creates) the capture file
func OpenSandbox(cfg config.SandboxConfig, logger *slog.Logger) (*Sandbox, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCaptures)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}

	return &Sandbox{
		db:            db,
		simulateError: strings.ToLower(strings.TrimSpace(cfg.SimulateError)),
		logger:        logger.With("component", "notifier", "driver", "sandbox"),
	}, nil
}

func (s *Sandbox) Send(ctx context.Context, d *Delivery) error {
	c := &Capture{
		ID:          d.EntryID,
		CampaignID:  d.CampaignID,
		JobID:       d.JobID,
		Mode:        string(d.Mode),
		RecipientID: d.Recipient.ID,
		Email:       d.Recipient.Email,
		Phone:       d.Recipient.Phone,
		Title:       d.Message.Title,
		Body:        d.Message.Body,
		URL:         d.Link(),
		CapturedAt:  time.Now().UTC(),
	}
	if s.simulateError != "" && emailDomain(d.Recipient.Email) == s.simulateError {
		c.SimulatedErr = "simulated delivery failure for " + s.simulateError
	}

	if err := s.save(c); err != nil {
		return err
	}

	if c.SimulatedErr != "" {
		return &DeliveryError{Message: c.SimulatedErr}
	}
	s.logger.Debug("delivery captured", "entry_id", c.ID, "recipient_id", c.RecipientID)
	return nil
}

func (s *Sandbox) save(c *Capture) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal capture: %w", err)
		}
		return tx.Bucket(bucketCaptures).Put(makeIndexKey(c.CapturedAt, c.ID), data)
	})
}

// List returns captures newest first, optionally only those of one campaign
func (s *Sandbox) List(campaignID string, limit int) ([]*Capture, error) {
	var captures []*Capture

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCaptures).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var capture Capture
			if err := json.Unmarshal(v, &capture); err != nil {
				continue
			}
			if campaignID != "" && capture.CampaignID != campaignID {
				continue
			}

			captures = append(captures, &capture)
			if limit > 0 && len(captures) >= limit {
				break
			}
		}
		return nil
	})

	return captures, err
}

// Clear removes captures older than the given age; zero removes everything
func (s *Sandbox) Clear(olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCaptures)
		c := bucket.Cursor()

		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var capture Capture
			if err := json.Unmarshal(v, &capture); err == nil && olderThan > 0 && capture.CapturedAt.After(cutoff) {
				continue
			}
			keys = append(keys, k)
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

func (s *Sandbox) Close() error {
	return s.db.Close()
}

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.Format(time.RFC3339Nano) + ":" + id)
}

func emailDomain(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}
