package relationship

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
)

type Config struct {
	// ReestablishMethods may open a new relationship after the pair's last one was terminated.
	ReestablishMethods []model.EstablishmentMethod
}

type Service struct {
	txm         repository.TxManager
	repo        repository.RelationshipRepository
	users       repository.UserRepository
	auditor     *audit.Service
	events      *event.Service
	metrics     *metrics.Metrics
	reestablish map[model.EstablishmentMethod]bool
	now         func() time.Time
}

func NewService(
	txm repository.TxManager,
	repo repository.RelationshipRepository,
	users repository.UserRepository,
	auditor *audit.Service,
	events *event.Service,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	methods := cfg.ReestablishMethods
	if methods == nil {
		methods = model.DefaultReestablishMethods
	}
	reestablish := make(map[model.EstablishmentMethod]bool, len(methods))
	for _, method := range methods {
		reestablish[method] = true
	}
	return &Service{
		txm:         txm,
		repo:        repo,
		users:       users,
		auditor:     auditor,
		events:      events,
		metrics:     m,
		reestablish: reestablish,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Establish returns the pair's active relationship, creating or reactivating one if needed.
// created is true only when a new record was written.
func (s *Service) Establish(
	ctx context.Context,
	actor model.Actor,
	doctorID, patientID uuid.UUID,
	method model.EstablishmentMethod,
	consultationID *uuid.UUID,
) (rel *model.DoctorPatientRelationship, created bool, err error) {
	if !method.Valid() {
		return nil, false, apperrors.Validation("unknown establishment method %q", method)
	}
	if doctorID == uuid.Nil || patientID == uuid.Nil {
		return nil, false, apperrors.Validation("doctor_id and patient_id are required")
	}
	if doctorID == patientID {
		return nil, false, apperrors.Validation("doctor and patient must differ")
	}

	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPair(ctx, doctorID, patientID); err != nil {
			return err
		}

		current, err := s.repo.FindCurrent(ctx, doctorID, patientID)
		if err != nil {
			return err
		}
		if current != nil {
			switch current.Status {
			case model.RelationshipStatusActive:
				rel = current
				return nil
			case model.RelationshipStatusSuspended:
				return apperrors.Conflict("relationship is suspended and must be reactivated explicitly", nil)
			case model.RelationshipStatusInactive:
				from := current.Status
				current.Status = model.RelationshipStatusActive
				current.UpdatedAt = s.now().UTC()
				if err := s.repo.Update(ctx, current); err != nil {
					return err
				}
				rel = current
				return s.record(ctx, actor, current, "reactivate", from)
			}
		}

		latest, err := s.repo.FindLatest(ctx, doctorID, patientID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == model.RelationshipStatusTerminated && !s.reestablish[method] {
			return apperrors.Conflict("relationship was terminated and cannot be re-established by "+string(method), nil)
		}

		now := s.now().UTC()
		rel = &model.DoctorPatientRelationship{
			ID:             uuid.New(),
			DoctorID:       doctorID,
			PatientID:      patientID,
			Method:         method,
			Status:         model.RelationshipStatusActive,
			EstablishedAt:  now,
			ConsultationID: consultationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Create(ctx, rel); err != nil {
			return err
		}
		created = true

		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityRelationship, rel.ID, &audit.LogOptions{
			Metadata: map[string]interface{}{"method": method, "consultation_id": consultationID},
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.RelationshipEstablished, rel)
	})
	if err != nil {
		return nil, false, err
	}
	return rel, created, nil
}

// EnsureForConsultation establishes a consultation relationship for the assigned doctor.
// An existing suspension or a re-establishment refusal leaves the ledger untouched.
func (s *Service) EnsureForConsultation(ctx context.Context, actor model.Actor, c *model.Consultation) error {
	if c.DoctorID == nil {
		return nil
	}
	_, _, err := s.Establish(ctx, actor, *c.DoctorID, c.PatientID, model.MethodConsultation, &c.ID)
	if apperrors.IsCode(err, apperrors.ErrConflict) {
		return nil
	}
	return err
}

// Request handles an API establishment request on behalf of actor.
func (s *Service) Request(ctx context.Context, actor model.Actor, req *model.EstablishRelationshipRequest) (*model.DoctorPatientRelationship, bool, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsDoctor():
		if actor.ID != req.DoctorID {
			return nil, false, apperrors.Unauthorized("doctors can only establish their own relationships")
		}
		switch req.Method {
		case model.MethodDoctorInitiated, model.MethodReferral, model.MethodEmergency:
		default:
			return nil, false, apperrors.Unauthorized("doctors cannot establish relationships by %s", req.Method)
		}
	case actor.IsPatient():
		if actor.ID != req.PatientID {
			return nil, false, apperrors.Unauthorized("patients can only establish their own relationships")
		}
		if req.Method != model.MethodPatientRequest {
			return nil, false, apperrors.Unauthorized("patients can only establish relationships by patient_request")
		}
	default:
		return nil, false, apperrors.Unauthorized("unknown role")
	}

	if err := s.requireRole(ctx, req.DoctorID, model.RoleDoctor); err != nil {
		return nil, false, err
	}
	if err := s.requireRole(ctx, req.PatientID, model.RolePatient); err != nil {
		return nil, false, err
	}
	return s.Establish(ctx, actor, req.DoctorID, req.PatientID, req.Method, req.ConsultationID)
}

func (s *Service) requireRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.Role != role {
		return apperrors.Validation("user %s is not a %s", id, role)
	}
	return nil
}

// CheckRelationship reports whether the pair has an active relationship. With recordAccess,
// a found relationship gets last_access_at stamped, whatever its status.
func (s *Service) CheckRelationship(ctx context.Context, doctorID, patientID uuid.UUID, recordAccess bool) (bool, *model.DoctorPatientRelationship, error) {
	rel, err := s.repo.FindCurrent(ctx, doctorID, patientID)
	if err != nil {
		return false, nil, err
	}
	if rel == nil {
		s.metrics.ObserveRelationshipCheck(false)
		return false, nil, nil
	}

	if recordAccess {
		now := s.now().UTC()
		if err := s.repo.TouchAccess(ctx, rel.ID, now); err != nil {
			return false, nil, err
		}
		rel.LastAccessAt = &now
	}

	allowed := rel.IsActive()
	s.metrics.ObserveRelationshipCheck(allowed)
	return allowed, rel, nil
}

// Require gates an action on an active relationship and records the access.
func (s *Service) Require(ctx context.Context, doctorID, patientID uuid.UUID) error {
	ok, _, err := s.CheckRelationship(ctx, doctorID, patientID, true)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Unauthorized("no active doctor-patient relationship")
	}
	return nil
}

// Check is the API form of CheckRelationship; it records the access and audits the read.
func (s *Service) Check(ctx context.Context, actor model.Actor, doctorID, patientID uuid.UUID) (*model.RelationshipCheck, error) {
	if !actor.IsAdmin() && actor.ID != doctorID && actor.ID != patientID {
		return nil, apperrors.Unauthorized("only the doctor, the patient or an admin can check this relationship")
	}

	var result model.RelationshipCheck
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		ok, rel, err := s.CheckRelationship(ctx, doctorID, patientID, true)
		if err != nil {
			return err
		}
		result = model.RelationshipCheck{Exists: ok, Relationship: rel}
		if rel == nil {
			return nil
		}
		return s.auditor.Log(ctx, actor.ID, model.AuditActionRead, model.AuditEntityRelationship, rel.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) Terminate(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.DoctorPatientRelationship, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("termination reason is required")
	}

	var rel *model.DoctorPatientRelationship
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rel, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !rel.Involves(actor.ID) {
			return apperrors.Unauthorized("not a party to this relationship")
		}
		if rel.Status == model.RelationshipStatusTerminated {
			return apperrors.InvalidState("relationship is already terminated")
		}

		from := rel.Status
		now := s.now().UTC()
		rel.Status = model.RelationshipStatusTerminated
		rel.TerminatedAt = &now
		rel.TerminationReason = &reason
		rel.UpdatedAt = now
		if err := s.repo.Update(ctx, rel); err != nil {
			return err
		}
		return s.record(ctx, actor, rel, "terminate", from)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *Service) Suspend(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	return s.transition(ctx, actor, id, "suspend", model.RelationshipStatusSuspended, model.RelationshipStatusActive)
}

func (s *Service) Deactivate(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	return s.transition(ctx, actor, id, "deactivate", model.RelationshipStatusInactive, model.RelationshipStatusActive)
}

func (s *Service) Reactivate(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	return s.transition(ctx, actor, id, "reactivate", model.RelationshipStatusActive,
		model.RelationshipStatusInactive, model.RelationshipStatusSuspended)
}

func (s *Service) transition(
	ctx context.Context,
	actor model.Actor,
	id uuid.UUID,
	name string,
	to model.RelationshipStatus,
	from ...model.RelationshipStatus,
) (*model.DoctorPatientRelationship, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only admins can %s relationships", name)
	}

	var rel *model.DoctorPatientRelationship
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rel, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !statusIn(rel.Status, from) {
			return apperrors.InvalidState("cannot %s a %s relationship", name, rel.Status)
		}

		prev := rel.Status
		rel.Status = to
		rel.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, rel); err != nil {
			return err
		}
		return s.record(ctx, actor, rel, name, prev)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *Service) record(ctx context.Context, actor model.Actor, rel *model.DoctorPatientRelationship, name string, from model.RelationshipStatus) error {
	changes := map[string]interface{}{"status": map[string]interface{}{"from": from, "to": rel.Status}}
	if err := s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityRelationship, rel.ID, &audit.LogOptions{
		Changes:  changes,
		Metadata: map[string]interface{}{"transition": name},
	}); err != nil {
		return err
	}
	return s.events.Emit(ctx, event.RelationshipChanged, map[string]interface{}{
		"relationship_id": rel.ID,
		"doctor_id":       rel.DoctorID,
		"patient_id":      rel.PatientID,
		"transition":      name,
		"status":          rel.Status,
	})
}

func statusIn(s model.RelationshipStatus, set []model.RelationshipStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// Get returns one relationship and records the read like Check does.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	var rel *model.DoctorPatientRelationship
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rel, err = s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !rel.Involves(actor.ID) {
			return apperrors.Unauthorized("not a party to this relationship")
		}
		return s.recordRead(ctx, actor, rel)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *Service) ListForPatient(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.DoctorPatientRelationship, error) {
	if !actor.IsAdmin() && actor.ID != patientID {
		return nil, apperrors.Unauthorized("cannot list another patient's relationships")
	}
	return s.listRecorded(ctx, actor, func(ctx context.Context) ([]*model.DoctorPatientRelationship, error) {
		return s.repo.ListByPatient(ctx, patientID)
	})
}

func (s *Service) ListForDoctor(ctx context.Context, actor model.Actor, doctorID uuid.UUID) ([]*model.DoctorPatientRelationship, error) {
	if !actor.IsAdmin() && actor.ID != doctorID {
		return nil, apperrors.Unauthorized("cannot list another doctor's relationships")
	}
	return s.listRecorded(ctx, actor, func(ctx context.Context) ([]*model.DoctorPatientRelationship, error) {
		return s.repo.ListByDoctor(ctx, doctorID)
	})
}

func (s *Service) listRecorded(
	ctx context.Context,
	actor model.Actor,
	list func(ctx context.Context) ([]*model.DoctorPatientRelationship, error),
) ([]*model.DoctorPatientRelationship, error) {
	var rels []*model.DoctorPatientRelationship
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rels, err = list(ctx)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			if err := s.recordRead(ctx, actor, rel); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rels, nil
}

// recordRead stamps last_access_at and audits an authorized read. Terminated rows are
// audited but never stamped.
func (s *Service) recordRead(ctx context.Context, actor model.Actor, rel *model.DoctorPatientRelationship) error {
	if rel.Status != model.RelationshipStatusTerminated {
		now := s.now().UTC()
		if err := s.repo.TouchAccess(ctx, rel.ID, now); err != nil {
			return err
		}
		rel.LastAccessAt = &now
	}
	return s.auditor.Log(ctx, actor.ID, model.AuditActionRead, model.AuditEntityRelationship, rel.ID, nil)
}
