package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

const emergencyColumns = `id, consultation_id, patient_id, doctor_id, reported_by, level, reason, status,
	hospital_id, hospital_name, hospital_address, escalated_at, ambulance_called_at, ambulance_eta,
	referral_letter, referral_generated_at, resolution_notes, resolved_at,
	created_at, updated_at, deleted_at`

type emergencyRepository struct {
	BaseRepository
}

func NewEmergencyRepository(base BaseRepository) repository.EmergencyRepository {
	return &emergencyRepository{base}
}

func (r *emergencyRepository) Create(ctx context.Context, e *model.Emergency) error {
	query := `
		INSERT INTO emergencies (
			id, consultation_id, patient_id, doctor_id, reported_by, level, reason, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := r.exec(ctx, query,
		e.ID,
		e.ConsultationID,
		e.PatientID,
		e.DoctorID,
		e.ReportedBy,
		e.Level,
		e.Reason,
		e.Status,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return mapError(err, "emergency")
}

func (r *emergencyRepository) Get(ctx context.Context, id uuid.UUID) (*model.Emergency, error) {
	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE id = $1 AND deleted_at IS NULL`

	var e model.Emergency
	if err := r.get(ctx, &e, query, id); err != nil {
		return nil, mapError(err, "emergency")
	}
	return &e, nil
}

func (r *emergencyRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Emergency, error) {
	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	var e model.Emergency
	if err := r.get(ctx, &e, query, id); err != nil {
		return nil, mapError(err, "emergency")
	}
	return &e, nil
}

// Update never clears escalated_at once stored.
func (r *emergencyRepository) Update(ctx context.Context, e *model.Emergency) error {
	query := `
		UPDATE emergencies
		SET status = $1,
			hospital_id = $2,
			hospital_name = $3,
			hospital_address = $4,
			escalated_at = COALESCE(escalated_at, $5),
			ambulance_called_at = COALESCE(ambulance_called_at, $6),
			ambulance_eta = $7,
			referral_letter = $8,
			referral_generated_at = $9,
			resolution_notes = $10,
			resolved_at = $11,
			updated_at = $12
		WHERE id = $13 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "emergency", query,
		e.Status,
		e.HospitalID,
		e.HospitalName,
		e.HospitalAddress,
		e.EscalatedAt,
		e.AmbulanceCalledAt,
		e.AmbulanceETA,
		e.ReferralLetter,
		e.ReferralGeneratedAt,
		e.ResolutionNotes,
		e.ResolvedAt,
		e.UpdatedAt,
		e.ID,
	)
}

func (r *emergencyRepository) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Emergency, error) {
	query := `
		SELECT ` + emergencyColumns + ` FROM emergencies
		WHERE consultation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	emergencies := []*model.Emergency{}
	if err := r.selectAll(ctx, &emergencies, query, consultationID); err != nil {
		return nil, mapError(err, "emergency")
	}
	return emergencies, nil
}

func (r *emergencyRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE emergencies SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "emergency", query, at, id)
}
