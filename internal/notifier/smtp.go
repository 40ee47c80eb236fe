package notifier

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/models"
)

// SMTP delivers campaigns as email through a relay
type SMTP struct {
	addr     string
	startTLS bool
	username string
	password string
	from     string
	fromName string
	dkim     *dkim.SignOptions
	logger   *slog.Logger
}

func NewSMTP(cfg config.SMTPConfig, logger *slog.Logger) (*SMTP, error) {
	s := &SMTP{
		addr:     cfg.Addr,
		startTLS: cfg.StartTLS,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   logger.With("component", "notifier", "driver", "smtp"),
	}

	if cfg.DKIM.Enabled {
		key, err := loadPrivateKey(cfg.DKIM.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		s.dkim = &dkim.SignOptions{
			Domain:                 cfg.DKIM.Domain,
			Selector:               cfg.DKIM.Selector,
			Signer:                 key,
			Hash:                   crypto.SHA256,
			HeaderCanonicalization: dkim.CanonicalizationRelaxed,
			BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		}
	}

	return s, nil
}

func (s *SMTP) Send(ctx context.Context, d *Delivery) error {
	to := strings.TrimSpace(d.Recipient.Email)
	if to == "" {
		return &DeliveryError{Message: "recipient has no email address"}
	}

	msg, err := s.compose(d, to)
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, to, msg); err != nil {
		var se *smtp.SMTPError
		if errors.As(err, &se) {
			return &DeliveryError{Temporary: se.Code/100 == 4, Message: fmt.Sprintf("smtp %d: %s", se.Code, se.Message)}
		}
		return &DeliveryError{Temporary: true, Message: err.Error()}
	}

	s.logger.Debug("email delivered", "entry_id", d.EntryID, "recipient_id", d.Recipient.ID)
	return nil
}

// compose renders the MIME message and signs it when DKIM is enabled
func (s *SMTP) compose(d *Delivery, to string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: s.fromName, Address: s.from}})
	h.SetAddressList("To", []*mail.Address{{Name: d.Recipient.Name, Address: to}})
	h.SetSubject(subject(d.Message))
	h.Set("Message-Id", fmt.Sprintf("<%s@%s>", d.EntryID, emailDomain(s.from)))
	h.Set("X-Campaign-Id", d.CampaignID)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := w.Write([]byte(textBody(d))); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}

	if s.dkim == nil {
		return buf.Bytes(), nil
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(buf.Bytes()), s.dkim); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signed.Bytes(), nil
}

func (s *SMTP) deliver(ctx context.Context, to string, msg []byte) error {
	var c *smtp.Client
	var err error
	if s.startTLS {
		c, err = smtp.DialStartTLS(s.addr, nil)
	} else {
		c, err = smtp.Dial(s.addr)
	}
	if err != nil {
		return fmt.Errorf("connect to %s: %w", s.addr, err)
	}
	defer c.Close()

	// Abort the conversation when the send deadline passes
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return err
		}
	}
	if err := c.Mail(s.from, nil); err != nil {
		return err
	}
	if err := c.Rcpt(to, nil); err != nil {
		return err
	}

	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}

	return c.Quit()
}

func subject(m models.Message) string {
	if m.Title != "" {
		return m.Title
	}
	line, _, _ := strings.Cut(m.Body, "\n")
	if len(line) > 78 {
		line = line[:78]
	}
	return line
}

func textBody(d *Delivery) string {
	var b strings.Builder
	b.WriteString(d.Message.Body)
	b.WriteString("\r\n")
	if link := d.Link(); link != "" {
		b.WriteString("\r\n")
		b.WriteString(link)
		b.WriteString("\r\n")
	}
	if d.Message.ImageURL != "" {
		b.WriteString("\r\n")
		b.WriteString(d.Message.ImageURL)
		b.WriteString("\r\n")
	}
	return b.String()
}

// loadPrivateKey loads an RSA private key from a PEM file
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}
