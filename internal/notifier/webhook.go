package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sourove-a/splaro/internal/config"
)

const userAgent = "splaro-campaigns/1"

// WebhookPayload is the JSON body POSTed to the push/SMS gateway
type WebhookPayload struct {
	ID         string           `json:"id"`
	CampaignID string           `json:"campaign_id"`
	JobID      string           `json:"job_id"`
	Mode       string           `json:"mode"`
	Recipient  WebhookRecipient `json:"recipient"`
	Title      string           `json:"title,omitempty"`
	Body       string           `json:"body"`
	ImageURL   string           `json:"image_url,omitempty"`
	URL        string           `json:"url,omitempty"`
	Timestamp  string           `json:"timestamp"`
}

type WebhookRecipient struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Webhook hands deliveries to an HTTP gateway that owns the push/SMS transport
type Webhook struct {
	url        string
	token      string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhook(cfg config.WebhookConfig, logger *slog.Logger) (*Webhook, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Webhook{
		url:        cfg.URL,
		token:      cfg.Token,
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "notifier", "driver", "webhook"),
	}, nil
}

func (w *Webhook) Send(ctx context.Context, d *Delivery) error {
	payload := WebhookPayload{
		ID:         d.EntryID,
		CampaignID: d.CampaignID,
		JobID:      d.JobID,
		Mode:       string(d.Mode),
		Recipient: WebhookRecipient{
			ID:    d.Recipient.ID,
			Name:  d.Recipient.Name,
			Email: d.Recipient.Email,
			Phone: d.Recipient.Phone,
		},
		Title:     d.Message.Title,
		Body:      d.Message.Body,
		ImageURL:  d.Message.ImageURL,
		URL:       d.Link(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Idempotency-Key", d.EntryID)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("gateway request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
		if text := strings.TrimSpace(string(body)); text != "" {
			msg += ": " + text
		}
		return &DeliveryError{
			Temporary: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Message:   msg,
		}
	}

	io.Copy(io.Discard, resp.Body)
	w.logger.Debug("delivery accepted", "entry_id", d.EntryID, "recipient_id", d.Recipient.ID)
	return nil
}
