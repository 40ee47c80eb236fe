package notifier

import (
	"context"
	"log/slog"
)

// Log only records deliveries in the application log
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "notifier", "driver", "log")}
}

func (l *Log) Send(_ context.Context, d *Delivery) error {
	l.logger.Info("delivery",
		"entry_id", d.EntryID,
		"campaign_id", d.CampaignID,
		"job_id", d.JobID,
		"mode", d.Mode,
		"recipient_id", d.Recipient.ID,
		"email", d.Recipient.Email,
		"phone", d.Recipient.Phone,
		"title", d.Message.Title,
		"url", d.Link(),
	)
	return nil
}
