package prescription

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
	"github.com/jwalitptl/telemed-api/pkg/validator"
)

type Service struct {
	txm           repository.TxManager
	repo          repository.PrescriptionRepository
	consultations repository.ConsultationRepository
	relationships *relationship.Service
	auditor       *audit.Service
	events        *event.Service
	validate      validator.Validator
	now           func() time.Time
}

func NewService(
	txm repository.TxManager,
	repo repository.PrescriptionRepository,
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
		validate:      validator.New(),
		now:           time.Now,
	}
}

// Issue records a prescription by the consultation's doctor on an active or closed consultation.
func (s *Service) Issue(ctx context.Context, actor model.Actor, consultationID uuid.UUID, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	medication := strings.TrimSpace(req.Medication)
	dosage := strings.TrimSpace(req.Dosage)
	if err := s.validate.ValidateField("medication", medication, "required,max=200"); err != nil {
		return nil, err
	}
	if err := s.validate.ValidateField("dosage", dosage, "required,max=200"); err != nil {
		return nil, err
	}

	var p *model.Prescription
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.consultations.Get(ctx, consultationID)
		if err != nil {
			return err
		}
		if !c.HasDoctor(actor.ID) {
			return apperrors.Unauthorized("only the consultation's doctor can prescribe")
		}
		if c.Status != model.ConsultationStatusActive && c.Status != model.ConsultationStatusClosed {
			return apperrors.InvalidState("cannot prescribe on a %s consultation", c.Status)
		}
		if err := s.relationships.Require(ctx, actor.ID, c.PatientID); err != nil {
			return err
		}

		p = &model.Prescription{
			ID:             uuid.New(),
			ConsultationID: c.ID,
			DoctorID:       actor.ID,
			PatientID:      c.PatientID,
			Medication:     medication,
			Dosage:         dosage,
			CreatedAt:      s.now().UTC(),
		}
		if instructions := strings.TrimSpace(req.Instructions); instructions != "" {
			p.Instructions = &instructions
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityPrescription, p.ID, &audit.LogOptions{
			Metadata: map[string]interface{}{"consultation_id": c.ID, "medication": medication},
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.PrescriptionIssued, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListForConsultation(ctx context.Context, actor model.Actor, consultationID uuid.UUID) ([]*model.Prescription, error) {
	c, err := s.consultations.Get(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !c.IsParticipant(actor.ID) {
		return nil, apperrors.Unauthorized("not a participant in this consultation")
	}
	return s.repo.ListByConsultation(ctx, consultationID)
}

// ListForPatient is open to the patient, admins, and doctors with an active relationship.
func (s *Service) ListForPatient(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Prescription, error) {
	switch {
	case actor.IsAdmin(), actor.ID == patientID:
	case actor.IsDoctor():
		if err := s.relationships.Require(ctx, actor.ID, patientID); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.Unauthorized("cannot read another patient's prescriptions")
	}
	return s.repo.ListByPatient(ctx, patientID)
}
