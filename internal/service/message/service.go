package message

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

// Service handles chat inside a consultation.
type Service struct {
	txm           repository.TxManager
	repo          repository.MessageRepository
	consultations repository.ConsultationRepository
	relationships *relationship.Service
	auditor       *audit.Service
	events        *event.Service
	now           func() time.Time
}

func NewService(
	txm repository.TxManager,
	repo repository.MessageRepository,
	consultations repository.ConsultationRepository,
	relationships *relationship.Service,
	auditor *audit.Service,
	events *event.Service,
) *Service {
	return &Service{
		txm:           txm,
		repo:          repo,
		consultations: consultations,
		relationships: relationships,
		auditor:       auditor,
		events:        events,
		now:           time.Now,
	}
}

func (s *Service) Send(ctx context.Context, actor model.Actor, consultationID uuid.UUID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.Validation("message body is required")
	}

	var msg *model.Message
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.consultations.Get(ctx, consultationID)
		if err != nil {
			return err
		}
		if !c.IsParticipant(actor.ID) {
			return apperrors.Unauthorized("not a participant in this consultation")
		}
		if c.Status != model.ConsultationStatusActive {
			return apperrors.InvalidState("messages can only be sent in an active consultation")
		}
		if err := s.relationships.Require(ctx, *c.DoctorID, c.PatientID); err != nil {
			return err
		}

		msg = &model.Message{
			ID:             uuid.New(),
			ConsultationID: c.ID,
			SenderID:       actor.ID,
			Body:           body,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.repo.Create(ctx, msg); err != nil {
			return err
		}
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityMessage, msg.ID, &audit.LogOptions{
			Metadata: map[string]interface{}{"consultation_id": c.ID},
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.MessageSent, map[string]interface{}{
			"message_id":      msg.ID,
			"consultation_id": c.ID,
			"sender_id":       actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// List returns the consultation's messages oldest first. A doctor's read goes through the
// relationship gate and is recorded as access.
func (s *Service) List(ctx context.Context, actor model.Actor, consultationID uuid.UUID, page model.Pagination) ([]*model.Message, error) {
	c, err := s.consultations.Get(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !c.IsParticipant(actor.ID) {
		return nil, apperrors.Unauthorized("not a participant in this consultation")
	}
	if c.HasDoctor(actor.ID) {
		if err := s.relationships.Require(ctx, actor.ID, c.PatientID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListByConsultation(ctx, consultationID, page.Normalize())
}
