// Package notifier delivers campaign messages to recipients over an external
// channel: a push/SMS gateway webhook, SMTP, a capture sandbox or the log.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/models"
)

// Notifier sends one message to one recipient
type Notifier interface {
	Send(ctx context.Context, d *Delivery) error
}

// Delivery is everything a channel needs to reach one recipient
type Delivery struct {
	EntryID    string // delivery log entry, also used for idempotency on the gateway side
	CampaignID string
	JobID      string
	Mode       models.JobMode
	Recipient  models.Recipient
	Message    models.Message
	ClickURL   string // tracked link wrapping Message.TargetURL, empty when tracking is off
}

// Link returns the URL the recipient should open
func (d *Delivery) Link() string {
	if d.ClickURL != "" {
		return d.ClickURL
	}
	return d.Message.TargetURL
}

// DeliveryError is a failed attempt reported by the channel
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporary reports whether err is a delivery error worth retrying later
func IsTemporary(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Temporary
}

// New creates the notifier selected by cfg.Driver, rate limited when
// cfg.RatePerSecond is set.
func New(cfg config.NotifierConfig, logger *slog.Logger) (Notifier, error) {
	var n Notifier
	var err error

	switch cfg.Driver {
	case "", "log":
		n = NewLog(logger)
	case "webhook":
		n, err = NewWebhook(cfg.Webhook, logger)
	case "smtp":
		n, err = NewSMTP(cfg.SMTP, logger)
	case "sandbox":
		n, err = OpenSandbox(cfg.Sandbox, logger)
	default:
		return nil, fmt.Errorf("unknown notifier driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RatePerSecond > 0 {
		n = NewThrottled(n, cfg.RatePerSecond, cfg.Burst)
	}
	return n, nil
}
