package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

const consultationColumns = `id, patient_id, doctor_id, complaint_type, description, status,
	start_time, end_time, closing_notes, cancel_reason, rejection_count, version,
	created_at, updated_at, deleted_at`

type consultationRepository struct {
	BaseRepository
}

func NewConsultationRepository(base BaseRepository) repository.ConsultationRepository {
	return &consultationRepository{base}
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	query := `
		INSERT INTO consultations (
			id, patient_id, doctor_id, complaint_type, description, status,
			rejection_count, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Version == 0 {
		c.Version = 1
	}

	_, err := r.exec(ctx, query,
		c.ID,
		c.PatientID,
		c.DoctorID,
		c.ComplaintType,
		c.Description,
		c.Status,
		c.RejectionCount,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return mapError(err, "consultation")
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1 AND deleted_at IS NULL`

	var c model.Consultation
	if err := r.get(ctx, &c, query, id); err != nil {
		return nil, mapError(err, "consultation")
	}
	return &c, nil
}

func (r *consultationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	var c model.Consultation
	if err := r.get(ctx, &c, query, id); err != nil {
		return nil, mapError(err, "consultation")
	}
	return &c, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	query := `
		UPDATE consultations
		SET doctor_id = $1,
			status = $2,
			start_time = $3,
			end_time = $4,
			closing_notes = $5,
			cancel_reason = $6,
			rejection_count = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10 AND deleted_at IS NULL
	`
	res, err := r.exec(ctx, query,
		c.DoctorID,
		c.Status,
		c.StartTime,
		c.EndTime,
		c.ClosingNotes,
		c.CancelReason,
		c.RejectionCount,
		c.UpdatedAt,
		c.ID,
		c.Version,
	)
	if err != nil {
		return mapError(err, "consultation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, "consultation")
	}
	if n == 0 {
		return apperrors.Conflict("consultation was modified concurrently", nil)
	}
	c.Version++
	return nil
}

func (r *consultationRepository) CountActiveByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM consultations
		WHERE doctor_id = $1 AND status = $2 AND deleted_at IS NULL
	`
	var count int
	if err := r.get(ctx, &count, query, doctorID, model.ConsultationStatusActive); err != nil {
		return 0, mapError(err, "consultation")
	}
	return count, nil
}

func (r *consultationRepository) List(ctx context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error) {
	page := filters.Pagination.Normalize()

	ds := dialect.From("consultations").Prepared(true).
		Select(goqu.L(consultationColumns)).
		Where(goqu.C("deleted_at").IsNull())
	if filters.PatientID != nil {
		ds = ds.Where(goqu.Ex{"patient_id": *filters.PatientID})
	}
	if filters.DoctorID != nil {
		ds = ds.Where(goqu.Ex{"doctor_id": *filters.DoctorID})
	}
	if filters.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filters.Status)})
	}
	ds = ds.Order(goqu.C("created_at").Desc()).
		Limit(uint(page.Limit)).
		Offset(uint(page.Offset))

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build consultation query: %w", err)
	}

	consultations := []*model.Consultation{}
	if err := r.selectAll(ctx, &consultations, query, args...); err != nil {
		return nil, mapError(err, "consultation")
	}
	return consultations, nil
}

func (r *consultationRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE consultations SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "consultation", query, at, id)
}
