package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"justicetracker/models"
)

// Notifier delivers a newly created alert to a human channel. Delivery is
// best effort: the alert row in the database is the source of truth and a
// delivery failure is only logged.
type Notifier interface {
	Notify(alert models.Alert)
}

// NopNotifier drops everything. Used when no channel is configured and in
// tests.
type NopNotifier struct{}

func (NopNotifier) Notify(models.Alert) {}

// MultiNotifier fans out to several channels.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(alert models.Alert) {
	for _, n := range m {
		n.Notify(alert)
	}
}

// EmailNotifier sends alert emails through SendGrid.
type EmailNotifier struct {
	APIKey string
	To     string
	log    *zap.Logger
}

func NewEmailNotifier(apiKey, to string, log *zap.Logger) *EmailNotifier {
	return &EmailNotifier{APIKey: apiKey, To: to, log: log}
}

func (e *EmailNotifier) Notify(alert models.Alert) {
	subject := fmt.Sprintf("[%s] %s alert: %s",
		strings.ToUpper(alert.Severity), alert.AlertType, alert.JobID)
	if alert.JobID == "" {
		subject = fmt.Sprintf("[%s] %s alert", strings.ToUpper(alert.Severity), alert.AlertType)
	}

	detailsJSON, _ := json.MarshalIndent(alert.Details, "", "  ")
	body := fmt.Sprintf(`%s

Type: %s
Severity: %s
Job: %s
Time: %s

Details:
%s

---
Alert ID: %s`,
		alert.Message,
		alert.AlertType,
		alert.Severity,
		alert.JobID,
		alert.CreatedAt.Format(time.RFC3339),
		string(detailsJSON),
		alert.ID,
	)

	from := mail.NewEmail("Youth Justice Tracker", e.To)
	to := mail.NewEmail("Admin", e.To)
	message := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(e.APIKey)

	resp, err := client.Send(message)
	if err != nil {
		e.log.Warn("alert email failed", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	e.log.Info("alert email sent",
		zap.String("alert_id", alert.ID), zap.Int("status_code", resp.StatusCode))
}

// SlackNotifier posts alerts to an incoming-webhook URL.
type SlackNotifier struct {
	WebhookURL string
	log        *zap.Logger
}

func NewSlackNotifier(webhookURL string, log *zap.Logger) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, log: log}
}

func (s *SlackNotifier) Notify(alert models.Alert) {
	payload := map[string]string{
		"text": fmt.Sprintf("🚨 %s alert (%s)\n\nJob: %s\n%s\n\nAlert ID: %s",
			alert.AlertType,
			alert.Severity,
			alert.JobID,
			alert.Message,
			alert.ID,
		),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal slack payload", zap.Error(err))
		return
	}

	resp, err := http.Post(s.WebhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		s.log.Warn("slack request failed", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.log.Warn("slack API error",
			zap.String("alert_id", alert.ID), zap.Int("status_code", resp.StatusCode))
	}
}
