// Package mail delivers password-reset verification codes. The recovery
// manager treats delivery as a fire-and-forget side channel; senders here
// only need to report success or failure for logging.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wayfarer.app/internal/obs"
)

// Config holds transactional-mail API settings, read from the environment
// by the composition root.
type Config struct {
	APIURL    string
	APIKey    string
	FromEmail string
	FromName  string
}

// APISender delivers codes through an HTTP transactional-mail API.
type APISender struct {
	cfg    Config
	client *http.Client
}

// NewAPISender constructs a sender with sane HTTP defaults.
func NewAPISender(cfg Config) *APISender {
	if cfg.FromEmail == "" {
		cfg.FromEmail = "noreply@wayfarer.app"
	}
	if cfg.FromName == "" {
		cfg.FromName = "Wayfarer"
	}
	return &APISender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the verification code email. The mail body mirrors what mobile
// clients already parse: the code plus its one-hour validity note.
func (s *APISender) Send(ctx context.Context, to, code string) error {
	payload := map[string]any{
		"from": map[string]string{
			"email": s.cfg.FromEmail,
			"name":  s.cfg.FromName,
		},
		"to":      []map[string]string{{"email": to}},
		"subject": "Password Reset Verification Code",
		"text": fmt.Sprintf("Your verification code is: %s\n\nThis code will expire in 1 hour.",
			code),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// LogSender writes codes to the service log instead of sending mail. Used
// for DSN-less development runs where no mail API is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, code string) error {
	obs.Log("info", "reset code issued", map[string]any{
		"email": to,
		"code":  code,
	})
	return nil
}
