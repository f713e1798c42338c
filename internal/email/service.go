package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/telemed-api/internal/config"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/event"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Dialer is the part of *gomail.Dialer the SMTP service uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPService struct {
	dialer Dialer
	from   string
}

func NewSMTPService(cfg config.SMTPConfig) *SMTPService {
	return NewSMTPServiceWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewSMTPServiceWithDialer(dialer Dialer, from string) *SMTPService {
	return &SMTPService{dialer: dialer, from: from}
}

func (s *SMTPService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// EmergencyNotifier pages the on-call address for emergency outbox events.
type EmergencyNotifier struct {
	mail   Service
	to     string
	logger *zap.Logger
}

func NewEmergencyNotifier(mail Service, to string, logger *zap.Logger) *EmergencyNotifier {
	return &EmergencyNotifier{mail: mail, to: to, logger: logger.Named("email")}
}

func (n *EmergencyNotifier) Wants(eventType string) bool {
	return n.to != "" && event.IsEmergency(eventType)
}

func (n *EmergencyNotifier) Notify(ctx context.Context, evt *model.OutboxEvent) error {
	subject, body := renderEmergency(evt)
	if err := n.mail.SendCustom(ctx, n.to, subject, body); err != nil {
		return err
	}
	n.logger.Info("emergency notification sent",
		zap.String("event_id", evt.ID.String()),
		zap.String("event_type", evt.EventType))
	return nil
}

func renderEmergency(evt *model.OutboxEvent) (string, string) {
	var payload struct {
		EmergencyID    string `json:"emergency_id"`
		ConsultationID string `json:"consultation_id"`
		Level          string `json:"level"`
	}
	_ = json.Unmarshal(evt.Payload, &payload)

	subject := fmt.Sprintf("[telemed] %s", evt.EventType)
	if payload.Level != "" {
		subject = fmt.Sprintf("[telemed] %s (%s)", evt.EventType, payload.Level)
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "Event: %s\n", evt.EventType)
	fmt.Fprintf(&body, "Occurred: %s\n", evt.CreatedAt.UTC().Format(time.RFC3339))
	if payload.EmergencyID != "" {
		fmt.Fprintf(&body, "Emergency: %s\n", payload.EmergencyID)
	}
	if payload.ConsultationID != "" {
		fmt.Fprintf(&body, "Consultation: %s\n", payload.ConsultationID)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, evt.Payload, "", "  "); err == nil {
		body.WriteString("\n")
		body.Write(pretty.Bytes())
		body.WriteString("\n")
	}
	return subject, body.String()
}
