package consultation

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
	"github.com/jwalitptl/telemed-api/pkg/metrics"
	"github.com/jwalitptl/telemed-api/pkg/validator"
)

// RejectPolicy decides what a doctor's rejection does to a pending consultation.
type RejectPolicy string

const (
	// RejectRelease leaves the consultation pending for another doctor.
	RejectRelease RejectPolicy = "release"
	// RejectCancel cancels the consultation.
	RejectCancel RejectPolicy = "cancel"
)

type Config struct {
	DefaultMaxConcurrent int
	RejectPolicy         RejectPolicy
}

type Service struct {
	txm           repository.TxManager
	repo          repository.ConsultationRepository
	doctors       repository.DoctorRepository
	users         repository.UserRepository
	relationships *relationship.Service
	auditor       *audit.Service
	events        *event.Service
	metrics       *metrics.Metrics
	validate      validator.Validator
	cfg           Config
	now           func() time.Time
}

func NewService(
	txm repository.TxManager,
	repo repository.ConsultationRepository,
	doctors repository.DoctorRepository,
	users repository.UserRepository,
	relationships *relationship.Service,
	auditor *audit.Service,
	events *event.Service,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.DefaultMaxConcurrent <= 0 {
		cfg.DefaultMaxConcurrent = 5
	}
	if cfg.RejectPolicy == "" {
		cfg.RejectPolicy = RejectRelease
	}
	return &Service{
		txm:           txm,
		repo:          repo,
		doctors:       doctors,
		users:         users,
		relationships: relationships,
		auditor:       auditor,
		events:        events,
		metrics:       m,
		validate:      validator.New(),
		cfg:           cfg,
		now:           time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type transitionEvent struct {
	ConsultationID uuid.UUID                `json:"consultation_id"`
	PatientID      uuid.UUID                `json:"patient_id"`
	DoctorID       *uuid.UUID               `json:"doctor_id,omitempty"`
	From           model.ConsultationStatus `json:"from,omitempty"`
	To             model.ConsultationStatus `json:"to"`
	ActorID        uuid.UUID                `json:"actor_id"`
	Reason         string                   `json:"reason,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateConsultationRequest) (*model.Consultation, error) {
	c, err := s.create(ctx, actor, req)
	s.metrics.ObserveTransition("create", err)
	return c, err
}

func (s *Service) create(ctx context.Context, actor model.Actor, req *model.CreateConsultationRequest) (*model.Consultation, error) {
	var patientID uuid.UUID
	switch {
	case actor.IsPatient():
		if req.PatientID != nil && *req.PatientID != actor.ID {
			return nil, apperrors.Unauthorized("patients can only open their own consultations")
		}
		patientID = actor.ID
	case actor.IsAdmin():
		if req.PatientID == nil {
			return nil, apperrors.Validation("patient_id is required")
		}
		patientID = *req.PatientID
		patient, err := s.users.Get(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if patient.Role != model.RolePatient {
			return nil, apperrors.Validation("user %s is not a patient", patientID)
		}
	default:
		return nil, apperrors.Unauthorized("only patients can open consultations")
	}

	complaint := strings.TrimSpace(req.ComplaintType)
	if err := s.validate.ValidateField("complaint_type", complaint, "required,max=100"); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(req.Description)
	if err := s.validate.ValidateField("description", description, "required,max=5000"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &model.Consultation{
		Base:          model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:     patientID,
		ComplaintType: complaint,
		Description:   description,
		Status:        model.ConsultationStatusPending,
		Version:       1,
	}

	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityConsultation, c.ID, &audit.LogOptions{
			Metadata: map[string]interface{}{"complaint_type": complaint},
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.ConsultationCreated, transitionEvent{
			ConsultationID: c.ID,
			PatientID:      c.PatientID,
			To:             c.Status,
			ActorID:        actor.ID,
			OccurredAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Accept assigns the calling doctor. The doctor's profile row is locked before the
// consultation row so concurrent accepts by one doctor serialize on the capacity check.
func (s *Service) Accept(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	if !actor.IsDoctor() {
		err := apperrors.Unauthorized("only doctors can accept consultations")
		s.metrics.ObserveTransition("accept", err)
		return nil, err
	}

	var out *model.Consultation
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		profile, err := s.doctors.GetForUpdate(ctx, actor.ID)
		if err != nil {
			return err
		}
		if !profile.Accepting {
			return apperrors.InvalidState("doctor is not accepting consultations")
		}

		c, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != model.ConsultationStatusPending {
			return apperrors.InvalidState("cannot accept a %s consultation", c.Status)
		}

		active, err := s.repo.CountActiveByDoctor(ctx, actor.ID)
		if err != nil {
			return err
		}
		limit := profile.MaxConcurrent
		if limit <= 0 {
			limit = s.cfg.DefaultMaxConcurrent
		}
		if active >= limit {
			return apperrors.CapacityExceeded("doctor already has %d of %d active consultations", active, limit)
		}

		now := s.now().UTC()
		doctorID := actor.ID
		c.Status = model.ConsultationStatusActive
		c.DoctorID = &doctorID
		c.StartTime = &now
		if err := s.commit(ctx, actor, c, model.ConsultationStatusPending, event.ConsultationAccepted, "", now); err != nil {
			return err
		}
		out = c
		return nil
	})
	if apperrors.IsCode(err, apperrors.ErrCapacityExceeded) {
		s.metrics.ObserveCapacityRejection()
	}
	s.metrics.ObserveTransition("accept", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Consultation, error) {
	reason = strings.TrimSpace(reason)
	c, err := s.mutate(ctx, actor, id, event.ConsultationRejected, reason, func(c *model.Consultation, _ time.Time) error {
		if !actor.IsDoctor() {
			return apperrors.Unauthorized("only doctors can reject consultations")
		}
		if c.Status != model.ConsultationStatusPending {
			return apperrors.InvalidState("cannot reject a %s consultation", c.Status)
		}
		c.RejectionCount++
		if s.cfg.RejectPolicy == RejectCancel {
			c.Status = model.ConsultationStatusCancelled
			if reason != "" {
				c.CancelReason = &reason
			}
		}
		return nil
	})
	s.metrics.ObserveTransition("reject", err)
	return c, err
}

func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID, closingNotes string) (*model.Consultation, error) {
	closingNotes = strings.TrimSpace(closingNotes)
	c, err := s.mutate(ctx, actor, id, event.ConsultationCompleted, "", func(c *model.Consultation, now time.Time) error {
		if !actor.IsDoctor() {
			return apperrors.Unauthorized("only doctors can complete consultations")
		}
		// State first: a pending consultation has no doctor to compare against.
		if c.Status != model.ConsultationStatusActive {
			return apperrors.InvalidState("cannot complete a %s consultation", c.Status)
		}
		if !c.HasDoctor(actor.ID) {
			return apperrors.Unauthorized("only the assigned doctor can complete this consultation")
		}
		if closingNotes == "" {
			return apperrors.Validation("closing notes are required")
		}

		end := now
		if c.StartTime != nil && end.Before(*c.StartTime) {
			end = *c.StartTime
		}
		c.Status = model.ConsultationStatusClosed
		c.EndTime = &end
		c.ClosingNotes = &closingNotes
		return nil
	})
	s.metrics.ObserveTransition("complete", err)
	return c, err
}

func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Consultation, error) {
	reason = strings.TrimSpace(reason)
	c, err := s.mutate(ctx, actor, id, event.ConsultationCancelled, reason, func(c *model.Consultation, _ time.Time) error {
		if !actor.IsAdmin() && c.PatientID != actor.ID {
			return apperrors.Unauthorized("only the patient can cancel this consultation")
		}
		if c.Status.IsTerminal() {
			return apperrors.InvalidState("cannot cancel a %s consultation", c.Status)
		}
		c.Status = model.ConsultationStatusCancelled
		if reason != "" {
			c.CancelReason = &reason
		}
		return nil
	})
	s.metrics.ObserveTransition("cancel", err)
	return c, err
}

// mutate loads and locks the consultation, applies fn and commits the result.
func (s *Service) mutate(
	ctx context.Context,
	actor model.Actor,
	id uuid.UUID,
	eventType string,
	reason string,
	fn func(c *model.Consultation, now time.Time) error,
) (*model.Consultation, error) {
	var out *model.Consultation
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := c.Status
		now := s.now().UTC()
		if err := fn(c, now); err != nil {
			return err
		}
		if err := s.commit(ctx, actor, c, from, eventType, reason, now); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// commit persists c and writes its relationship, audit and outbox side effects.
func (s *Service) commit(
	ctx context.Context,
	actor model.Actor,
	c *model.Consultation,
	from model.ConsultationStatus,
	eventType string,
	reason string,
	now time.Time,
) error {
	c.UpdatedAt = now
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}

	if err := s.relationships.EnsureForConsultation(ctx, actor, c); err != nil {
		return err
	}

	metadata := map[string]interface{}{"transition": eventType}
	if reason != "" {
		metadata["reason"] = reason
	}
	if err := s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityConsultation, c.ID, &audit.LogOptions{
		Changes:  map[string]interface{}{"status": map[string]interface{}{"from": from, "to": c.Status}},
		Metadata: metadata,
	}); err != nil {
		return err
	}

	return s.events.Emit(ctx, eventType, transitionEvent{
		ConsultationID: c.ID,
		PatientID:      c.PatientID,
		DoctorID:       c.DoctorID,
		From:           from,
		To:             c.Status,
		ActorID:        actor.ID,
		Reason:         reason,
		OccurredAt:     now,
	})
}

// Get allows participants and admins; doctors may also read the pending queue.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, c) {
		return nil, apperrors.Unauthorized("not a participant in this consultation")
	}
	return c, nil
}

func canRead(actor model.Actor, c *model.Consultation) bool {
	switch {
	case actor.IsAdmin(), c.IsParticipant(actor.ID):
		return true
	case actor.IsDoctor():
		return c.Status == model.ConsultationStatusPending
	}
	return false
}

// List scopes filters to the caller: patients see their own consultations, doctors see
// their own or, when asking for pending ones, the unassigned queue.
func (s *Service) List(ctx context.Context, actor model.Actor, filters *model.ConsultationFilters) ([]*model.Consultation, error) {
	if filters == nil {
		filters = &model.ConsultationFilters{}
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.Validation("unknown consultation status %q", filters.Status)
	}

	scoped := *filters
	scoped.Pagination = filters.Pagination.Normalize()
	switch {
	case actor.IsAdmin():
	case actor.IsPatient():
		scoped.PatientID = &actor.ID
	case actor.IsDoctor():
		if scoped.Status == model.ConsultationStatusPending {
			scoped.DoctorID = nil
		} else {
			scoped.DoctorID = &actor.ID
		}
	default:
		return nil, apperrors.Unauthorized("unknown role")
	}
	return s.repo.List(ctx, &scoped)
}

// Archive tombstones a terminal consultation.
func (s *Service) Archive(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return apperrors.Unauthorized("only admins can archive consultations")
	}
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.IsTerminal() {
			return apperrors.InvalidState("cannot archive a %s consultation", c.Status)
		}
		if err := s.repo.SoftDelete(ctx, id, s.now().UTC()); err != nil {
			return err
		}
		return s.auditor.Log(ctx, actor.ID, model.AuditActionDelete, model.AuditEntityConsultation, id, nil)
	})
}
