package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
)

// Get* methods return a NotFound error when the row is absent or tombstoned.
// Find* methods return (nil, nil) instead.
type (
	// TxManager runs fn in a transaction carried by the context passed to fn.
	// Nested calls join the outer transaction.
	TxManager interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	DoctorRepository interface {
		Create(ctx context.Context, profile *model.DoctorProfile) error
		Get(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error)
		// GetForUpdate locks the profile row until the surrounding transaction ends.
		GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error)
	}

	ConsultationRepository interface {
		Create(ctx context.Context, consultation *model.Consultation) error
		Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		// Update bumps Version and fails with Conflict when the stored version moved.
		Update(ctx context.Context, consultation *model.Consultation) error
		CountActiveByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error)
		List(ctx context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error)
		SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	RelationshipRepository interface {
		Create(ctx context.Context, rel *model.DoctorPatientRelationship) error
		Get(ctx context.Context, id uuid.UUID) (*model.DoctorPatientRelationship, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.DoctorPatientRelationship, error)
		// FindCurrent returns the pair's non-terminated relationship.
		FindCurrent(ctx context.Context, doctorID, patientID uuid.UUID) (*model.DoctorPatientRelationship, error)
		// FindLatest returns the pair's most recently established relationship in any status.
		FindLatest(ctx context.Context, doctorID, patientID uuid.UUID) (*model.DoctorPatientRelationship, error)
		Update(ctx context.Context, rel *model.DoctorPatientRelationship) error
		TouchAccess(ctx context.Context, id uuid.UUID, at time.Time) error
		// LockPair serializes establishment for one doctor/patient pair.
		LockPair(ctx context.Context, doctorID, patientID uuid.UUID) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.DoctorPatientRelationship, error)
		ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorPatientRelationship, error)
	}

	EmergencyRepository interface {
		Create(ctx context.Context, emergency *model.Emergency) error
		Get(ctx context.Context, id uuid.UUID) (*model.Emergency, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Emergency, error)
		Update(ctx context.Context, emergency *model.Emergency) error
		ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Emergency, error)
		SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	// EmergencyContactRepository never deletes; only the response fields change.
	EmergencyContactRepository interface {
		Create(ctx context.Context, contact *model.EmergencyContact) error
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.EmergencyContact, error)
		RecordResponse(ctx context.Context, contact *model.EmergencyContact) error
		ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*model.EmergencyContact, error)
	}

	// EscalationLogRepository is append-only.
	EscalationLogRepository interface {
		Append(ctx context.Context, entry *model.EmergencyEscalationLog) error
		ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*model.EmergencyEscalationLog, error)
	}

	HospitalRepository interface {
		Create(ctx context.Context, hospital *model.Hospital) error
		Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error)
		List(ctx context.Context, emergencyOnly bool) ([]*model.Hospital, error)
	}

	MessageRepository interface {
		Create(ctx context.Context, msg *model.Message) error
		ListByConsultation(ctx context.Context, consultationID uuid.UUID, page model.Pagination) ([]*model.Message, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, p *model.Prescription) error
		ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Prescription, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEventsWithLock must run inside a transaction; rows stay locked until it ends.
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errorMessage string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Repositories bundles one implementation of every repository behind a shared TxManager.
type Repositories struct {
	Tx             TxManager
	Users          UserRepository
	Doctors        DoctorRepository
	Consultations  ConsultationRepository
	Relationships  RelationshipRepository
	Emergencies    EmergencyRepository
	Contacts       EmergencyContactRepository
	EscalationLogs EscalationLogRepository
	Hospitals      HospitalRepository
	Messages       MessageRepository
	Prescriptions  PrescriptionRepository
	Audit          AuditRepository
	Outbox         OutboxRepository
}
