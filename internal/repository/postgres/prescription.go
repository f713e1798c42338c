package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

const prescriptionColumns = `id, consultation_id, doctor_id, patient_id, medication, dosage, instructions, created_at`

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	_, err := r.exec(ctx, query,
		p.ID, p.ConsultationID, p.DoctorID, p.PatientID, p.Medication, p.Dosage, p.Instructions, p.CreatedAt,
	)
	return mapError(err, "prescription")
}

func (r *prescriptionRepository) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + ` FROM prescriptions
		WHERE consultation_id = $1
		ORDER BY created_at DESC
	`
	out := []*model.Prescription{}
	if err := r.selectAll(ctx, &out, query, consultationID); err != nil {
		return nil, mapError(err, "prescription")
	}
	return out, nil
}

func (r *prescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + ` FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	out := []*model.Prescription{}
	if err := r.selectAll(ctx, &out, query, patientID); err != nil {
		return nil, mapError(err, "prescription")
	}
	return out, nil
}
