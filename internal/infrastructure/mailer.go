package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tracker_suite/internal/interfaces"
)

const (
	resendEndpoint   = "https://api.resend.com/emails"
	sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
)

// NewMailer picks Resend, then SendGrid, then a logging mailer, depending on which key is set.
func NewMailer(resendKey, sendGridKey, from string, log *zap.Logger) interfaces.Mailer {
	client := &http.Client{Timeout: 15 * time.Second}
	switch {
	case resendKey != "":
		return &ResendMailer{apiKey: resendKey, from: from, endpoint: resendEndpoint, client: client}
	case sendGridKey != "":
		return &SendGridMailer{apiKey: sendGridKey, from: from, endpoint: sendGridEndpoint, client: client}
	default:
		log.Warn("no email provider configured, emails will only be logged")
		return &LogMailer{log: log}
	}
}

type ResendMailer struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, body string) error {
	payload := map[string]interface{}{
		"from":    m.from,
		"to":      []string{to},
		"subject": subject,
		"html":    body,
	}
	return postJSON(ctx, m.client, m.endpoint, m.apiKey, payload)
}

type SendGridMailer struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": m.from},
		"subject": subject,
		"content": []map[string]string{{"type": "text/html", "value": body}},
	}
	return postJSON(ctx, m.client, m.endpoint, m.apiKey, payload)
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	log *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("email (not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)))
	return nil
}
