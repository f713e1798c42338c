package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

const relationshipColumns = `id, doctor_id, patient_id, establishment_method, status, established_at,
	last_access_at, terminated_at, termination_reason, consultation_id, created_at, updated_at`

type relationshipRepository struct {
	BaseRepository
}

func NewRelationshipRepository(base BaseRepository) repository.RelationshipRepository {
	return &relationshipRepository{base}
}

func (r *relationshipRepository) Create(ctx context.Context, rel *model.DoctorPatientRelationship) error {
	query := `
		INSERT INTO doctor_patient_relationships (` + relationshipColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}

	_, err := r.exec(ctx, query,
		rel.ID,
		rel.DoctorID,
		rel.PatientID,
		rel.Method,
		rel.Status,
		rel.EstablishedAt,
		rel.LastAccessAt,
		rel.TerminatedAt,
		rel.TerminationReason,
		rel.ConsultationID,
		rel.CreatedAt,
		rel.UpdatedAt,
	)
	return mapError(err, "relationship")
}

func (r *relationshipRepository) Get(ctx context.Context, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM doctor_patient_relationships WHERE id = $1`

	var rel model.DoctorPatientRelationship
	if err := r.get(ctx, &rel, query, id); err != nil {
		return nil, mapError(err, "relationship")
	}
	return &rel, nil
}

func (r *relationshipRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM doctor_patient_relationships WHERE id = $1 FOR UPDATE`

	var rel model.DoctorPatientRelationship
	if err := r.get(ctx, &rel, query, id); err != nil {
		return nil, mapError(err, "relationship")
	}
	return &rel, nil
}

func (r *relationshipRepository) FindCurrent(ctx context.Context, doctorID, patientID uuid.UUID) (*model.DoctorPatientRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + ` FROM doctor_patient_relationships
		WHERE doctor_id = $1 AND patient_id = $2 AND status <> 'terminated'
		ORDER BY established_at DESC
		LIMIT 1
	`
	return r.find(ctx, query, doctorID, patientID)
}

func (r *relationshipRepository) FindLatest(ctx context.Context, doctorID, patientID uuid.UUID) (*model.DoctorPatientRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + ` FROM doctor_patient_relationships
		WHERE doctor_id = $1 AND patient_id = $2
		ORDER BY established_at DESC
		LIMIT 1
	`
	return r.find(ctx, query, doctorID, patientID)
}

func (r *relationshipRepository) find(ctx context.Context, query string, args ...interface{}) (*model.DoctorPatientRelationship, error) {
	rels := []*model.DoctorPatientRelationship{}
	if err := r.selectAll(ctx, &rels, query, args...); err != nil {
		return nil, mapError(err, "relationship")
	}
	if len(rels) == 0 {
		return nil, nil
	}
	return rels[0], nil
}

func (r *relationshipRepository) Update(ctx context.Context, rel *model.DoctorPatientRelationship) error {
	query := `
		UPDATE doctor_patient_relationships
		SET status = $1,
			establishment_method = $2,
			last_access_at = $3,
			terminated_at = $4,
			termination_reason = $5,
			updated_at = $6
		WHERE id = $7 AND status <> 'terminated'
	`
	return r.execOne(ctx, "relationship", query,
		rel.Status,
		rel.Method,
		rel.LastAccessAt,
		rel.TerminatedAt,
		rel.TerminationReason,
		rel.UpdatedAt,
		rel.ID,
	)
}

func (r *relationshipRepository) TouchAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE doctor_patient_relationships SET last_access_at = $1 WHERE id = $2`
	return r.execOne(ctx, "relationship", query, at, id)
}

func (r *relationshipRepository) LockPair(ctx context.Context, doctorID, patientID uuid.UUID) error {
	_, err := r.exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`,
		doctorID.String(), patientID.String())
	return mapError(err, "relationship")
}

func (r *relationshipRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.DoctorPatientRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + ` FROM doctor_patient_relationships
		WHERE patient_id = $1
		ORDER BY established_at DESC
	`
	rels := []*model.DoctorPatientRelationship{}
	if err := r.selectAll(ctx, &rels, query, patientID); err != nil {
		return nil, mapError(err, "relationship")
	}
	return rels, nil
}

func (r *relationshipRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorPatientRelationship, error) {
	query := `
		SELECT ` + relationshipColumns + ` FROM doctor_patient_relationships
		WHERE doctor_id = $1
		ORDER BY established_at DESC
	`
	rels := []*model.DoctorPatientRelationship{}
	if err := r.selectAll(ctx, &rels, query, doctorID); err != nil {
		return nil, mapError(err, "relationship")
	}
	return rels, nil
}
