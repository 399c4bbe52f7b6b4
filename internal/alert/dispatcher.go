package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// SendResult is the outcome of one dispatch attempt to one target.
type SendResult struct {
	Success        bool
	ErrorMessage   string
	ProviderStatus string
}

// Dispatcher sends a rendered alert to one target on one channel.
type Dispatcher interface {
	Send(ctx context.Context, channel, target, subject, message string, payload map[string]any) SendResult
}

// NoopDispatcher always fails; it's the default when no SMTP/webhook
// configuration is supplied.
type NoopDispatcher struct{}

func (NoopDispatcher) Send(ctx context.Context, channel, target, subject, message string, payload map[string]any) SendResult {
	return SendResult{Success: false, ErrorMessage: "dispatcher not configured"}
}

// SMTPConfig carries the mail-relay settings used by RealDispatcher for the
// email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// RealDispatcher sends email via net/smtp and webhook payloads via
// net/http — no ecosystem HTTP or mail client appears anywhere in the
// dependency stack this module draws from for this concern.
type RealDispatcher struct {
	SMTP       SMTPConfig
	HTTPClient *http.Client
}

func NewRealDispatcher(smtpCfg SMTPConfig) *RealDispatcher {
	return &RealDispatcher{
		SMTP:       smtpCfg,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *RealDispatcher) Send(ctx context.Context, channel, target, subject, message string, payload map[string]any) SendResult {
	switch channel {
	case "email":
		return d.sendEmail(target, subject, message)
	case "im":
		return d.sendWebhook(ctx, target, genericWebhookBody(subject, message, payload))
	case "dingtalk":
		return d.sendWebhook(ctx, target, dingtalkBody(subject, message))
	case "wecom":
		return d.sendWebhook(ctx, target, wecomBody(subject, message))
	case "pagerduty":
		return d.sendPagerDuty(ctx, target, subject, message, payload)
	default:
		return SendResult{Success: false, ErrorMessage: fmt.Sprintf("unsupported channel %q", channel)}
	}
}

func (d *RealDispatcher) sendEmail(to, subject, body string) SendResult {
	if d.SMTP.Host == "" {
		return SendResult{Success: false, ErrorMessage: "smtp not configured"}
	}
	addr := fmt.Sprintf("%s:%d", d.SMTP.Host, d.SMTP.Port)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", d.SMTP.From, to, subject, body))

	var auth smtp.Auth
	if d.SMTP.Username != "" {
		auth = smtp.PlainAuth("", d.SMTP.Username, d.SMTP.Password, d.SMTP.Host)
	}
	if err := smtp.SendMail(addr, auth, d.SMTP.From, []string{to}, msg); err != nil {
		return SendResult{Success: false, ErrorMessage: err.Error()}
	}
	return SendResult{Success: true, ProviderStatus: "250"}
}

func (d *RealDispatcher) sendWebhook(ctx context.Context, url string, body map[string]any) SendResult {
	payload, err := json.Marshal(body)
	if err != nil {
		return SendResult{Success: false, ErrorMessage: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return SendResult{Success: false, ErrorMessage: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return SendResult{Success: false, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("%d", resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SendResult{Success: true, ProviderStatus: status}
	}
	return SendResult{Success: false, ErrorMessage: fmt.Sprintf("webhook returned status %s", status), ProviderStatus: status}
}

func (d *RealDispatcher) sendPagerDuty(ctx context.Context, url, subject, message string, payload map[string]any) SendResult {
	routingKey, _ := payload["pagerduty_routing_key"].(string)
	body := map[string]any{
		"routing_key":  routingKey,
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  subject,
			"source":   "trading-assistant",
			"severity": "critical",
			"custom_details": map[string]any{
				"message": message,
			},
		},
	}
	return d.sendWebhook(ctx, url, body)
}

func genericWebhookBody(subject, message string, payload map[string]any) map[string]any {
	return map[string]any{"title": subject, "text": message, "payload": payload}
}

func dingtalkBody(subject, message string) map[string]any {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n\n")
	b.WriteString(message)
	return map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"title": subject,
			"text":  b.String(),
		},
	}
}

func wecomBody(subject, message string) map[string]any {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n\n")
	b.WriteString(message)
	return map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]any{"content": b.String()},
	}
}
