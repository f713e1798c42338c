package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/internal/service/hospital"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
)

type Config struct {
	// RecentWindow is how long after closing a consultation an emergency may still be raised.
	RecentWindow time.Duration
}

type Repositories struct {
	Emergencies   repository.EmergencyRepository
	Contacts      repository.EmergencyContactRepository
	Logs          repository.EscalationLogRepository
	Consultations repository.ConsultationRepository
	Users         repository.UserRepository
	Doctors       repository.DoctorRepository
}

type Service struct {
	txm           repository.TxManager
	repos         Repositories
	hospitals     *hospital.Service
	relationships *relationship.Service
	auditor       *audit.Service
	events        *event.Service
	metrics       *metrics.Metrics
	cfg           Config
	now           func() time.Time
}

func NewService(
	txm repository.TxManager,
	repos Repositories,
	hospitals *hospital.Service,
	relationships *relationship.Service,
	auditor *audit.Service,
	events *event.Service,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 24 * time.Hour
	}
	return &Service{
		txm:           txm,
		repos:         repos,
		hospitals:     hospitals,
		relationships: relationships,
		auditor:       auditor,
		events:        events,
		metrics:       m,
		cfg:           cfg,
		now:           time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// step is what a tracker action appends alongside the emergency update.
type step struct {
	action  model.EscalationAction
	details map[string]interface{}
	contact *model.EmergencyContact
	event   string
}

func canAccess(actor model.Actor, e *model.Emergency) bool {
	return actor.IsAdmin() ||
		e.PatientID == actor.ID ||
		e.ReportedBy == actor.ID ||
		(e.DoctorID != nil && *e.DoctorID == actor.ID)
}

func (s *Service) Create(ctx context.Context, actor model.Actor, consultationID uuid.UUID, req *model.CreateEmergencyRequest) (*model.Emergency, error) {
	e, err := s.create(ctx, actor, consultationID, req)
	s.metrics.ObserveEmergencyAction("create", err)
	return e, err
}

func (s *Service) create(ctx context.Context, actor model.Actor, consultationID uuid.UUID, req *model.CreateEmergencyRequest) (*model.Emergency, error) {
	if !req.Level.Valid() {
		return nil, apperrors.Validation("unknown emergency level %q", req.Level)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.Validation("emergency reason is required")
	}

	var out *model.Emergency
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repos.Consultations.Get(ctx, consultationID)
		if err != nil {
			return err
		}
		if !c.IsParticipant(actor.ID) {
			return apperrors.Unauthorized("only the patient or the assigned doctor can raise an emergency")
		}

		now := s.now().UTC()
		switch c.Status {
		case model.ConsultationStatusActive:
		case model.ConsultationStatusClosed:
			if c.EndTime == nil || now.Sub(*c.EndTime) > s.cfg.RecentWindow {
				return apperrors.InvalidState("consultation closed more than %s ago", s.cfg.RecentWindow)
			}
		default:
			return apperrors.InvalidState("cannot raise an emergency on a %s consultation", c.Status)
		}

		e := &model.Emergency{
			Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			ConsultationID: c.ID,
			PatientID:      c.PatientID,
			DoctorID:       c.DoctorID,
			ReportedBy:     actor.ID,
			Level:          req.Level,
			Reason:         reason,
			Status:         model.EmergencyStatusOpen,
		}
		if err := s.repos.Emergencies.Create(ctx, e); err != nil {
			return err
		}
		if err := s.record(ctx, actor, e, now, &step{
			action:  model.ActionEmergencyCreated,
			details: map[string]interface{}{"level": e.Level, "reason": reason},
			event:   event.EmergencyCreated,
		}, model.AuditActionCreate); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply runs one tracker action on an unresolved emergency inside a transaction.
func (s *Service) apply(
	ctx context.Context,
	actor model.Actor,
	id uuid.UUID,
	name string,
	fn func(ctx context.Context, e *model.Emergency, now time.Time) (*step, error),
) (*model.Emergency, error) {
	var out *model.Emergency
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repos.Emergencies.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, e) {
			return apperrors.Unauthorized("not involved in this emergency")
		}
		if e.IsResolved() {
			return apperrors.InvalidState("emergency is resolved")
		}

		now := s.now().UTC()
		st, err := fn(ctx, e, now)
		if err != nil {
			return err
		}
		e.UpdatedAt = now
		if err := s.repos.Emergencies.Update(ctx, e); err != nil {
			return err
		}
		if err := s.record(ctx, actor, e, now, st, model.AuditActionUpdate); err != nil {
			return err
		}
		out = e
		return nil
	})
	s.metrics.ObserveEmergencyAction(name, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// record appends the contact, escalation log row, audit row and outbox event of a step.
func (s *Service) record(ctx context.Context, actor model.Actor, e *model.Emergency, now time.Time, st *step, auditAction string) error {
	if st.contact != nil {
		st.contact.ID = uuid.New()
		st.contact.EmergencyID = e.ID
		st.contact.Status = model.ContactStatusPending
		st.contact.CreatedAt = now
		if err := s.repos.Contacts.Create(ctx, st.contact); err != nil {
			return err
		}
		st.details["contact_id"] = st.contact.ID
	}

	details, err := json.Marshal(st.details)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation details: %w", err)
	}
	entry := &model.EmergencyEscalationLog{
		ID:             uuid.New(),
		EmergencyID:    e.ID,
		ConsultationID: e.ConsultationID,
		Action:         st.action,
		PerformedBy:    actor.ID,
		Details:        details,
		CreatedAt:      now,
	}
	if err := s.repos.Logs.Append(ctx, entry); err != nil {
		return err
	}

	if err := s.auditor.Log(ctx, actor.ID, auditAction, model.AuditEntityEmergency, e.ID, &audit.LogOptions{
		Changes:  map[string]interface{}{"status": e.Status},
		Metadata: map[string]interface{}{"action": st.action},
	}); err != nil {
		return err
	}

	return s.events.Emit(ctx, st.event, map[string]interface{}{
		"emergency_id":    e.ID,
		"consultation_id": e.ConsultationID,
		"patient_id":      e.PatientID,
		"doctor_id":       e.DoctorID,
		"level":           e.Level,
		"status":          e.Status,
		"action":          st.action,
		"details":         st.details,
		"performed_by":    actor.ID,
		"occurred_at":     now,
	})
}

// EscalateToHospital names the receiving hospital. escalated_at is stamped only once.
func (s *Service) EscalateToHospital(ctx context.Context, actor model.Actor, id uuid.UUID, info model.HospitalInfo) (*model.Emergency, error) {
	name := strings.TrimSpace(info.Name)
	address := strings.TrimSpace(info.Address)
	phone := strings.TrimSpace(info.Phone)
	if info.HospitalID != nil {
		h, err := s.hospitals.Get(ctx, *info.HospitalID)
		if err != nil {
			s.metrics.ObserveEmergencyAction("escalate", err)
			return nil, err
		}
		name, address = h.Name, h.Address
		if h.Phone != nil {
			phone = *h.Phone
		}
	}
	if name == "" {
		err := apperrors.Validation("hospital name or hospital_id is required")
		s.metrics.ObserveEmergencyAction("escalate", err)
		return nil, err
	}

	return s.apply(ctx, actor, id, "escalate", func(_ context.Context, e *model.Emergency, now time.Time) (*step, error) {
		e.HospitalID = info.HospitalID
		e.HospitalName = &name
		e.HospitalAddress = optional(address)
		if e.Status == model.EmergencyStatusOpen {
			e.Status = model.EmergencyStatusEscalated
		}
		if e.EscalatedAt == nil {
			e.EscalatedAt = &now
		}
		return &step{
			action: model.ActionHospitalEscalation,
			details: map[string]interface{}{
				"hospital_id":      info.HospitalID,
				"hospital_name":    name,
				"hospital_address": address,
				"status":           e.Status,
			},
			contact: &model.EmergencyContact{Type: model.ContactTypeHospital, Name: name, Phone: optional(phone)},
			event:   event.EmergencyEscalated,
		}, nil
	})
}

// CallAmbulance records the dispatch; ambulance_called_at is stamped only once, the ETA is updated.
func (s *Service) CallAmbulance(ctx context.Context, actor model.Actor, id uuid.UUID, eta string) (*model.Emergency, error) {
	eta = strings.TrimSpace(eta)
	if eta == "" {
		err := apperrors.Validation("ambulance eta is required")
		s.metrics.ObserveEmergencyAction("ambulance", err)
		return nil, err
	}

	return s.apply(ctx, actor, id, "ambulance", func(_ context.Context, e *model.Emergency, now time.Time) (*step, error) {
		if e.AmbulanceCalledAt == nil {
			e.AmbulanceCalledAt = &now
		}
		e.AmbulanceETA = &eta
		return &step{
			action:  model.ActionAmbulanceCalled,
			details: map[string]interface{}{"eta": eta},
			contact: &model.EmergencyContact{Type: model.ContactTypeAmbulance, Name: "ambulance service"},
			event:   event.EmergencyAmbulanceCalled,
		}, nil
	})
}

// GenerateReferralLetter renders and stores a referral to the escalation hospital. It may be repeated.
func (s *Service) GenerateReferralLetter(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Emergency, error) {
	return s.apply(ctx, actor, id, "referral", func(ctx context.Context, e *model.Emergency, now time.Time) (*step, error) {
		if !e.HasHospital() {
			return nil, apperrors.InvalidState("emergency has not been escalated to a hospital")
		}
		if e.DoctorID == nil {
			return nil, apperrors.InvalidState("emergency has no doctor to sign the referral")
		}
		if !actor.IsAdmin() && actor.ID != *e.DoctorID {
			return nil, apperrors.Unauthorized("only the treating doctor can issue a referral letter")
		}
		if err := s.relationships.Require(ctx, *e.DoctorID, e.PatientID); err != nil {
			return nil, err
		}

		data, err := s.referralData(ctx, e, now)
		if err != nil {
			return nil, err
		}
		letter, err := renderReferral(data)
		if err != nil {
			return nil, err
		}

		e.ReferralLetter = &letter
		e.ReferralGeneratedAt = &now
		if e.Status == model.EmergencyStatusOpen || e.Status == model.EmergencyStatusEscalated {
			e.Status = model.EmergencyStatusReferred
		}
		return &step{
			action:  model.ActionReferralGenerated,
			details: map[string]interface{}{"hospital_name": *e.HospitalName, "status": e.Status},
			event:   event.EmergencyReferralIssued,
		}, nil
	})
}

func (s *Service) referralData(ctx context.Context, e *model.Emergency, now time.Time) (referralData, error) {
	c, err := s.repos.Consultations.Get(ctx, e.ConsultationID)
	if err != nil {
		return referralData{}, err
	}
	patient, err := s.repos.Users.Get(ctx, e.PatientID)
	if err != nil {
		return referralData{}, err
	}
	doctor, err := s.repos.Users.Get(ctx, *e.DoctorID)
	if err != nil {
		return referralData{}, err
	}

	data := referralData{
		GeneratedAt:       formatTime(&now),
		HospitalName:      *e.HospitalName,
		PatientName:       patient.Name,
		PatientEmail:      patient.Email,
		ConsultationID:    c.ID.String(),
		EmergencyID:       e.ID.String(),
		Complaint:         c.ComplaintType,
		Description:       c.Description,
		Level:             string(e.Level),
		Reason:            e.Reason,
		ReportedAt:        formatTime(&e.CreatedAt),
		EscalatedAt:       formatTime(e.EscalatedAt),
		AmbulanceCalledAt: formatTime(e.AmbulanceCalledAt),
		DoctorName:        doctor.Name,
	}
	if e.HospitalAddress != nil {
		data.HospitalAddress = *e.HospitalAddress
	}
	if e.HospitalID != nil {
		if h, err := s.hospitals.Get(ctx, *e.HospitalID); err == nil && h.Phone != nil {
			data.HospitalPhone = *h.Phone
		}
	}
	if profile, err := s.repos.Doctors.Get(ctx, *e.DoctorID); err == nil {
		data.Specialization = profile.Specialization
	}
	return data, nil
}

func (s *Service) AddContact(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AddContactRequest) (*model.EmergencyContact, error) {
	if !req.Type.Valid() {
		err := apperrors.Validation("unknown contact type %q", req.Type)
		s.metrics.ObserveEmergencyAction("contact", err)
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		err := apperrors.Validation("contact name is required")
		s.metrics.ObserveEmergencyAction("contact", err)
		return nil, err
	}

	contact := &model.EmergencyContact{Type: req.Type, Name: name, Phone: optional(req.Phone)}
	_, err := s.apply(ctx, actor, id, "contact", func(_ context.Context, _ *model.Emergency, _ time.Time) (*step, error) {
		return &step{
			action:  model.ActionContactAdded,
			details: map[string]interface{}{"contact_type": req.Type, "name": name},
			contact: contact,
			event:   event.EmergencyContactAdded,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// RecordContactResponse stores the outcome of a pending contact attempt.
func (s *Service) RecordContactResponse(ctx context.Context, actor model.Actor, contactID uuid.UUID, req *model.ContactResponseRequest) (*model.EmergencyContact, error) {
	switch req.Status {
	case model.ContactStatusReached, model.ContactStatusUnreachable, model.ContactStatusDeclined:
	default:
		return nil, apperrors.Validation("contact status must be reached, unreachable or declined")
	}

	var out *model.EmergencyContact
	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		contact, err := s.repos.Contacts.GetForUpdate(ctx, contactID)
		if err != nil {
			return err
		}
		e, err := s.repos.Emergencies.GetForUpdate(ctx, contact.EmergencyID)
		if err != nil {
			return err
		}
		if !canAccess(actor, e) {
			return apperrors.Unauthorized("not involved in this emergency")
		}
		if e.IsResolved() {
			return apperrors.InvalidState("emergency is resolved")
		}
		if contact.Status != model.ContactStatusPending {
			return apperrors.InvalidState("contact already has a response")
		}

		now := s.now().UTC()
		contact.Status = req.Status
		contact.Response = optional(req.Response)
		contact.RespondedAt = &now
		if err := s.repos.Contacts.RecordResponse(ctx, contact); err != nil {
			return err
		}
		if err := s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityEmergency, e.ID, &audit.LogOptions{
			Changes: map[string]interface{}{"contact_id": contact.ID, "status": contact.Status},
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, event.EmergencyContactResponded, contact); err != nil {
			return err
		}
		out = contact
		return nil
	})
	s.metrics.ObserveEmergencyAction("contact_response", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkResolved closes the emergency; resolved is terminal.
func (s *Service) MarkResolved(ctx context.Context, actor model.Actor, id uuid.UUID, notes string) (*model.Emergency, error) {
	notes = strings.TrimSpace(notes)
	return s.apply(ctx, actor, id, "resolve", func(_ context.Context, e *model.Emergency, now time.Time) (*step, error) {
		if notes != "" {
			combined := notes
			if e.ResolutionNotes != nil && *e.ResolutionNotes != "" {
				combined = *e.ResolutionNotes + "\n" + notes
			}
			e.ResolutionNotes = &combined
		}
		e.Status = model.EmergencyStatusResolved
		e.ResolvedAt = &now
		return &step{
			action:  model.ActionResolved,
			details: map[string]interface{}{"notes": notes},
			event:   event.EmergencyResolved,
		}, nil
	})
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Emergency, error) {
	e, err := s.repos.Emergencies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, e) {
		return nil, apperrors.Unauthorized("not involved in this emergency")
	}
	return e, nil
}

func (s *Service) ListByConsultation(ctx context.Context, actor model.Actor, consultationID uuid.UUID) ([]*model.Emergency, error) {
	c, err := s.repos.Consultations.Get(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !c.IsParticipant(actor.ID) {
		return nil, apperrors.Unauthorized("not a participant in this consultation")
	}
	return s.repos.Emergencies.ListByConsultation(ctx, consultationID)
}

// Logs returns the escalation log in append order.
func (s *Service) Logs(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.EmergencyEscalationLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repos.Logs.ListByEmergency(ctx, id)
}

func (s *Service) Contacts(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.EmergencyContact, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repos.Contacts.ListByEmergency(ctx, id)
}

// Archive tombstones a resolved emergency. Its escalation log is kept.
func (s *Service) Archive(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return apperrors.Unauthorized("only admins can archive emergencies")
	}
	return s.txm.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repos.Emergencies.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !e.IsResolved() {
			return apperrors.InvalidState("cannot archive an unresolved emergency")
		}
		if err := s.repos.Emergencies.SoftDelete(ctx, id, s.now().UTC()); err != nil {
			return err
		}
		return s.auditor.Log(ctx, actor.ID, model.AuditActionDelete, model.AuditEntityEmergency, id, nil)
	})
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
