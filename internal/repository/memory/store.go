// Package memory holds map-backed repositories with the same semantics as the
// postgres ones. Transactions are serialized and roll back by snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

type txKey struct{}

// Store is the shared state behind every memory repository.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users         map[uuid.UUID]model.User
	doctors       map[uuid.UUID]model.DoctorProfile
	consultations map[uuid.UUID]model.Consultation
	relationships map[uuid.UUID]model.DoctorPatientRelationship
	emergencies   map[uuid.UUID]model.Emergency
	contacts      map[uuid.UUID]model.EmergencyContact
	logs          []model.EmergencyEscalationLog
	hospitals     map[uuid.UUID]model.Hospital
	messages      []model.Message
	prescriptions []model.Prescription
	audit         []model.AuditLog
	outbox        []model.OutboxEvent

	failures map[string]error
}

func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]model.User),
		doctors:       make(map[uuid.UUID]model.DoctorProfile),
		consultations: make(map[uuid.UUID]model.Consultation),
		relationships: make(map[uuid.UUID]model.DoctorPatientRelationship),
		emergencies:   make(map[uuid.UUID]model.Emergency),
		contacts:      make(map[uuid.UUID]model.EmergencyContact),
		hospitals:     make(map[uuid.UUID]model.Hospital),
		failures:      make(map[string]error),
	}
}

// Operation names accepted by FailOn.
const (
	OpAuditCreate   = "audit.create"
	OpLogAppend     = "escalation_log.append"
	OpOutboxCreate  = "outbox.create"
	OpContactCreate = "contact.create"
)

// FailOn makes the named write return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

type snapshot struct {
	users         map[uuid.UUID]model.User
	doctors       map[uuid.UUID]model.DoctorProfile
	consultations map[uuid.UUID]model.Consultation
	relationships map[uuid.UUID]model.DoctorPatientRelationship
	emergencies   map[uuid.UUID]model.Emergency
	contacts      map[uuid.UUID]model.EmergencyContact
	logs          []model.EmergencyEscalationLog
	hospitals     map[uuid.UUID]model.Hospital
	messages      []model.Message
	prescriptions []model.Prescription
	audit         []model.AuditLog
	outbox        []model.OutboxEvent
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySlice[V any](in []V) []V {
	return append([]V(nil), in...)
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		users:         copyMap(s.users),
		doctors:       copyMap(s.doctors),
		consultations: copyMap(s.consultations),
		relationships: copyMap(s.relationships),
		emergencies:   copyMap(s.emergencies),
		contacts:      copyMap(s.contacts),
		logs:          copySlice(s.logs),
		hospitals:     copyMap(s.hospitals),
		messages:      copySlice(s.messages),
		prescriptions: copySlice(s.prescriptions),
		audit:         copySlice(s.audit),
		outbox:        copySlice(s.outbox),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.doctors = snap.doctors
	s.consultations = snap.consultations
	s.relationships = snap.relationships
	s.emergencies = snap.emergencies
	s.contacts = snap.contacts
	s.logs = snap.logs
	s.hospitals = snap.hospitals
	s.messages = snap.messages
	s.prescriptions = snap.prescriptions
	s.audit = snap.audit
	s.outbox = snap.outbox
}

// WithinTx implements repository.TxManager.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// AuditLogs returns a copy of the recorded audit rows.
func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.audit)
}

// OutboxEvents returns a copy of the recorded outbox rows.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.outbox)
}

// Repositories bundles every memory repository over one store.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Tx:             s,
		Users:          &userRepo{s},
		Doctors:        &doctorRepo{s},
		Consultations:  &consultationRepo{s},
		Relationships:  &relationshipRepo{s},
		Emergencies:    &emergencyRepo{s},
		Contacts:       &contactRepo{s},
		EscalationLogs: &logRepo{s},
		Hospitals:      &hospitalRepo{s},
		Messages:       &messageRepo{s},
		Prescriptions:  &prescriptionRepo{s},
		Audit:          &auditRepo{s},
		Outbox:         &outboxRepo{s},
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func page[V any](in []V, p model.Pagination) []V {
	p = p.Normalize()
	if p.Offset >= len(in) {
		return []V{}
	}
	end := p.Offset + p.Limit
	if end > len(in) {
		end = len(in)
	}
	return in[p.Offset:end]
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return apperrors.Conflict("user already exists", nil)
		}
	}
	ensureID(&u.ID)
	r.s.users[u.ID] = *u
	return nil
}

func (r *userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

type doctorRepo struct{ s *Store }

func (r *doctorRepo) Create(_ context.Context, p *model.DoctorProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[p.UserID]; ok {
		return apperrors.Conflict("doctor profile already exists", nil)
	}
	r.s.doctors[p.UserID] = *p
	return nil
}

func (r *doctorRepo) Get(_ context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.doctors[userID]
	if !ok {
		return nil, apperrors.NotFound("doctor profile", nil)
	}
	return &p, nil
}

func (r *doctorRepo) GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	return r.Get(ctx, userID)
}

type consultationRepo struct{ s *Store }

func (r *consultationRepo) Create(_ context.Context, c *model.Consultation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&c.ID)
	if c.Version == 0 {
		c.Version = 1
	}
	r.s.consultations[c.ID] = *c
	return nil
}

func (r *consultationRepo) Get(_ context.Context, id uuid.UUID) (*model.Consultation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.consultations[id]
	if !ok || c.IsDeleted() {
		return nil, apperrors.NotFound("consultation", nil)
	}
	return &c, nil
}

func (r *consultationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	return r.Get(ctx, id)
}

func (r *consultationRepo) Update(_ context.Context, c *model.Consultation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.consultations[c.ID]
	if !ok || stored.IsDeleted() || stored.Version != c.Version {
		return apperrors.Conflict("consultation was modified concurrently", nil)
	}
	c.Version++
	r.s.consultations[c.ID] = *c
	return nil
}

func (r *consultationRepo) CountActiveByDoctor(_ context.Context, doctorID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, c := range r.s.consultations {
		if !c.IsDeleted() && c.Status == model.ConsultationStatusActive && c.HasDoctor(doctorID) {
			n++
		}
	}
	return n, nil
}

func (r *consultationRepo) List(_ context.Context, f *model.ConsultationFilters) ([]*model.Consultation, error) {
	r.s.mu.RLock()
	var matched []model.Consultation
	for _, c := range r.s.consultations {
		if c.IsDeleted() {
			continue
		}
		if f.PatientID != nil && c.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && !c.HasDoctor(*f.DoctorID) {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		matched = append(matched, c)
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	out := []*model.Consultation{}
	for _, c := range page(matched, f.Pagination) {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

func (r *consultationRepo) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.consultations[id]
	if !ok || c.IsDeleted() {
		return apperrors.NotFound("consultation", nil)
	}
	c.DeletedAt = &at
	c.UpdatedAt = at
	r.s.consultations[id] = c
	return nil
}

type relationshipRepo struct{ s *Store }

func (r *relationshipRepo) Create(_ context.Context, rel *model.DoctorPatientRelationship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rel.Status != model.RelationshipStatusTerminated {
		for _, existing := range r.s.relationships {
			if existing.DoctorID == rel.DoctorID && existing.PatientID == rel.PatientID &&
				existing.Status != model.RelationshipStatusTerminated {
				return apperrors.Conflict("relationship already exists", nil)
			}
		}
	}
	ensureID(&rel.ID)
	r.s.relationships[rel.ID] = *rel
	return nil
}

func (r *relationshipRepo) Get(_ context.Context, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rel, ok := r.s.relationships[id]
	if !ok {
		return nil, apperrors.NotFound("relationship", nil)
	}
	return &rel, nil
}

func (r *relationshipRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	return r.Get(ctx, id)
}

func (r *relationshipRepo) latest(doctorID, patientID uuid.UUID, includeTerminated bool) *model.DoctorPatientRelationship {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *model.DoctorPatientRelationship
	for _, rel := range r.s.relationships {
		if rel.DoctorID != doctorID || rel.PatientID != patientID {
			continue
		}
		if !includeTerminated && rel.Status == model.RelationshipStatusTerminated {
			continue
		}
		if found == nil || rel.EstablishedAt.After(found.EstablishedAt) {
			rel := rel
			found = &rel
		}
	}
	return found
}

func (r *relationshipRepo) FindCurrent(_ context.Context, doctorID, patientID uuid.UUID) (*model.DoctorPatientRelationship, error) {
	return r.latest(doctorID, patientID, false), nil
}

func (r *relationshipRepo) FindLatest(_ context.Context, doctorID, patientID uuid.UUID) (*model.DoctorPatientRelationship, error) {
	return r.latest(doctorID, patientID, true), nil
}

func (r *relationshipRepo) Update(_ context.Context, rel *model.DoctorPatientRelationship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.relationships[rel.ID]
	if !ok || stored.Status == model.RelationshipStatusTerminated {
		return apperrors.NotFound("relationship", nil)
	}
	stored.Status = rel.Status
	stored.Method = rel.Method
	stored.LastAccessAt = rel.LastAccessAt
	stored.TerminatedAt = rel.TerminatedAt
	stored.TerminationReason = rel.TerminationReason
	stored.UpdatedAt = rel.UpdatedAt
	r.s.relationships[rel.ID] = stored
	return nil
}

func (r *relationshipRepo) TouchAccess(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rel, ok := r.s.relationships[id]
	if !ok {
		return apperrors.NotFound("relationship", nil)
	}
	rel.LastAccessAt = &at
	r.s.relationships[id] = rel
	return nil
}

// LockPair is a no-op; WithinTx already serializes writers.
func (r *relationshipRepo) LockPair(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (r *relationshipRepo) list(match func(model.DoctorPatientRelationship) bool) []*model.DoctorPatientRelationship {
	r.s.mu.RLock()
	var matched []model.DoctorPatientRelationship
	for _, rel := range r.s.relationships {
		if match(rel) {
			matched = append(matched, rel)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].EstablishedAt.After(matched[j].EstablishedAt) })
	out := make([]*model.DoctorPatientRelationship, 0, len(matched))
	for _, rel := range matched {
		rel := rel
		out = append(out, &rel)
	}
	return out
}

func (r *relationshipRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.DoctorPatientRelationship, error) {
	return r.list(func(rel model.DoctorPatientRelationship) bool { return rel.PatientID == patientID }), nil
}

func (r *relationshipRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*model.DoctorPatientRelationship, error) {
	return r.list(func(rel model.DoctorPatientRelationship) bool { return rel.DoctorID == doctorID }), nil
}

type emergencyRepo struct{ s *Store }

func (r *emergencyRepo) Create(_ context.Context, e *model.Emergency) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&e.ID)
	r.s.emergencies[e.ID] = *e
	return nil
}

func (r *emergencyRepo) Get(_ context.Context, id uuid.UUID) (*model.Emergency, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.emergencies[id]
	if !ok || e.IsDeleted() {
		return nil, apperrors.NotFound("emergency", nil)
	}
	return &e, nil
}

func (r *emergencyRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Emergency, error) {
	return r.Get(ctx, id)
}

func (r *emergencyRepo) Update(_ context.Context, e *model.Emergency) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.emergencies[e.ID]
	if !ok || stored.IsDeleted() {
		return apperrors.NotFound("emergency", nil)
	}
	next := *e
	if stored.EscalatedAt != nil {
		next.EscalatedAt = stored.EscalatedAt
	}
	if stored.AmbulanceCalledAt != nil {
		next.AmbulanceCalledAt = stored.AmbulanceCalledAt
	}
	r.s.emergencies[e.ID] = next
	return nil
}

func (r *emergencyRepo) ListByConsultation(_ context.Context, consultationID uuid.UUID) ([]*model.Emergency, error) {
	r.s.mu.RLock()
	var matched []model.Emergency
	for _, e := range r.s.emergencies {
		if !e.IsDeleted() && e.ConsultationID == consultationID {
			matched = append(matched, e)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	out := make([]*model.Emergency, 0, len(matched))
	for _, e := range matched {
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (r *emergencyRepo) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emergencies[id]
	if !ok || e.IsDeleted() {
		return apperrors.NotFound("emergency", nil)
	}
	e.DeletedAt = &at
	e.UpdatedAt = at
	r.s.emergencies[id] = e
	return nil
}

type contactRepo struct{ s *Store }

func (r *contactRepo) Create(_ context.Context, c *model.EmergencyContact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpContactCreate); err != nil {
		return err
	}
	ensureID(&c.ID)
	r.s.contacts[c.ID] = *c
	return nil
}

func (r *contactRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*model.EmergencyContact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contacts[id]
	if !ok {
		return nil, apperrors.NotFound("emergency contact", nil)
	}
	return &c, nil
}

func (r *contactRepo) RecordResponse(_ context.Context, c *model.EmergencyContact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.contacts[c.ID]
	if !ok {
		return apperrors.NotFound("emergency contact", nil)
	}
	if stored.Status != model.ContactStatusPending {
		return apperrors.InvalidState("emergency contact already has a response")
	}
	stored.Status = c.Status
	stored.Response = c.Response
	stored.RespondedAt = c.RespondedAt
	r.s.contacts[c.ID] = stored
	return nil
}

func (r *contactRepo) ListByEmergency(_ context.Context, emergencyID uuid.UUID) ([]*model.EmergencyContact, error) {
	r.s.mu.RLock()
	var matched []model.EmergencyContact
	for _, c := range r.s.contacts {
		if c.EmergencyID == emergencyID {
			matched = append(matched, c)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	out := make([]*model.EmergencyContact, 0, len(matched))
	for _, c := range matched {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

type logRepo struct{ s *Store }

func (r *logRepo) Append(_ context.Context, entry *model.EmergencyEscalationLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpLogAppend); err != nil {
		return err
	}
	ensureID(&entry.ID)
	stored := *entry
	stored.Details = append([]byte(nil), entry.Details...)
	r.s.logs = append(r.s.logs, stored)
	return nil
}

func (r *logRepo) ListByEmergency(_ context.Context, emergencyID uuid.UUID) ([]*model.EmergencyEscalationLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.EmergencyEscalationLog{}
	for _, entry := range r.s.logs {
		if entry.EmergencyID == emergencyID {
			entry := entry
			entry.Details = append([]byte(nil), entry.Details...)
			out = append(out, &entry)
		}
	}
	return out, nil
}

type hospitalRepo struct{ s *Store }

func (r *hospitalRepo) Create(_ context.Context, h *model.Hospital) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&h.ID)
	r.s.hospitals[h.ID] = *h
	return nil
}

func (r *hospitalRepo) Get(_ context.Context, id uuid.UUID) (*model.Hospital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	h, ok := r.s.hospitals[id]
	if !ok {
		return nil, apperrors.NotFound("hospital", nil)
	}
	return &h, nil
}

func (r *hospitalRepo) List(_ context.Context, emergencyOnly bool) ([]*model.Hospital, error) {
	r.s.mu.RLock()
	var matched []model.Hospital
	for _, h := range r.s.hospitals {
		if !emergencyOnly || h.EmergencyCapable {
			matched = append(matched, h)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	out := make([]*model.Hospital, 0, len(matched))
	for _, h := range matched {
		h := h
		out = append(out, &h)
	}
	return out, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(_ context.Context, m *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&m.ID)
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r *messageRepo) ListByConsultation(_ context.Context, consultationID uuid.UUID, p model.Pagination) ([]*model.Message, error) {
	r.s.mu.RLock()
	var matched []model.Message
	for _, m := range r.s.messages {
		if m.ConsultationID == consultationID {
			matched = append(matched, m)
		}
	}
	r.s.mu.RUnlock()

	out := []*model.Message{}
	for _, m := range page(matched, p) {
		m := m
		out = append(out, &m)
	}
	return out, nil
}

type prescriptionRepo struct{ s *Store }

func (r *prescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&p.ID)
	r.s.prescriptions = append(r.s.prescriptions, *p)
	return nil
}

func (r *prescriptionRepo) filter(match func(model.Prescription) bool) []*model.Prescription {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.Prescription{}
	for i := len(r.s.prescriptions) - 1; i >= 0; i-- {
		p := r.s.prescriptions[i]
		if match(p) {
			out = append(out, &p)
		}
	}
	return out
}

func (r *prescriptionRepo) ListByConsultation(_ context.Context, consultationID uuid.UUID) ([]*model.Prescription, error) {
	return r.filter(func(p model.Prescription) bool { return p.ConsultationID == consultationID }), nil
}

func (r *prescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return r.filter(func(p model.Prescription) bool { return p.PatientID == patientID }), nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpAuditCreate); err != nil {
		return err
	}
	ensureID(&log.ID)
	r.s.audit = append(r.s.audit, *log)
	return nil
}

func (r *auditRepo) List(_ context.Context, f *model.AuditLogFilters) ([]*model.AuditLog, error) {
	r.s.mu.RLock()
	var matched []model.AuditLog
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		l := r.s.audit[i]
		if f.UserID != nil && l.UserID != *f.UserID {
			continue
		}
		if f.EntityType != "" && l.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != nil && l.EntityID != *f.EntityID {
			continue
		}
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		matched = append(matched, l)
	}
	r.s.mu.RUnlock()

	out := []*model.AuditLog{}
	for _, l := range page(matched, f.Pagination) {
		l := l
		out = append(out, &l)
	}
	return out, nil
}

func (r *auditRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.audit[:0:0]
	var deleted int64
	for _, l := range r.s.audit {
		if l.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	r.s.audit = kept
	return deleted, nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Create(_ context.Context, evt *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpOutboxCreate); err != nil {
		return err
	}
	ensureID(&evt.ID)
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	evt.UpdatedAt = evt.CreatedAt
	evt.Status = model.OutboxStatusPending
	r.s.outbox = append(r.s.outbox, *evt)
	return nil
}

func (r *outboxRepo) GetPendingEventsWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	now := time.Now()
	out := []*model.OutboxEvent{}
	for _, evt := range r.s.outbox {
		if len(out) >= limit {
			break
		}
		if evt.Status != model.OutboxStatusPending && evt.Status != model.OutboxStatusRetry {
			continue
		}
		if evt.RetryAt != nil && evt.RetryAt.After(now) {
			continue
		}
		evt := evt
		out = append(out, &evt)
	}
	return out, nil
}

func (r *outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			fn(&r.s.outbox[i])
			r.s.outbox[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperrors.NotFound("outbox event", nil)
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(evt *model.OutboxEvent) {
		now := time.Now().UTC()
		evt.Status = model.OutboxStatusProcessed
		evt.ProcessedAt = &now
		evt.ErrorMessage = nil
	})
}

func (r *outboxRepo) MarkRetry(_ context.Context, id uuid.UUID, errorMessage string, retryAt time.Time) error {
	return r.update(id, func(evt *model.OutboxEvent) {
		evt.Status = model.OutboxStatusRetry
		evt.ErrorMessage = &errorMessage
		evt.RetryCount++
		evt.RetryAt = &retryAt
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	return r.update(id, func(evt *model.OutboxEvent) {
		evt.Status = model.OutboxStatusFailed
		evt.ErrorMessage = &errorMessage
		evt.RetryCount++
	})
}

func (r *outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0:0]
	var deleted int64
	for _, evt := range r.s.outbox {
		if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, evt)
	}
	r.s.outbox = kept
	return deleted, nil
}
