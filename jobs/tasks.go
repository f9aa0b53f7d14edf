package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/peergrade-io/peergrade/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeEmail is the task type for new-account notifications.
	TaskTypeWelcomeEmail = "mail:welcome"
)

// WelcomeEmailPayload describes the information required to greet a new
// account holder.
type WelcomeEmailPayload struct {
	To   string `json:"to"`
	Name string `json:"name"`
}

// NewWelcomeEmailTask constructs an Asynq task.
func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeEmail, data), nil
}

// SMTPConfig points the mail handler at an SMTP relay.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// WelcomeEmailHandler delivers account-creation notifications.
type WelcomeEmailHandler struct {
	logger  *slog.Logger
	smtp    SMTPConfig
	metrics *jobmetrics.Metrics
}

// NewWelcomeEmailHandler builds the handler.
func NewWelcomeEmailHandler(logger *slog.Logger, cfg SMTPConfig) *WelcomeEmailHandler {
	return &WelcomeEmailHandler{logger: logger, smtp: cfg, metrics: jobmetrics.NewMetrics(nil)}
}

// Handle processes TaskTypeWelcomeEmail tasks.
func (h *WelcomeEmailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track("welcome_email")
	return tracker.End(h.send(payload))
}

func (h *WelcomeEmailHandler) send(payload WelcomeEmailPayload) error {
	if h.smtp.Host == "" {
		h.logger.Info("welcome email skipped, smtp not configured", slog.String("to", payload.To))
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Welcome to Peergrade\r\n\r\nHi %s,\r\n\r\nYour account is ready. Sign in with your username to get started.\r\n",
		h.smtp.From, payload.To, payload.Name)
	addr := fmt.Sprintf("%s:%d", h.smtp.Host, h.smtp.Port)
	if err := smtp.SendMail(addr, nil, h.smtp.From, []string{payload.To}, []byte(msg)); err != nil {
		return fmt.Errorf("jobs: send welcome email: %w", err)
	}
	h.logger.Info("welcome email sent", slog.String("to", payload.To))
	return nil
}
