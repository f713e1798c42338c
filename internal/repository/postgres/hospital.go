package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

const hospitalColumns = `id, name, address, phone, email, emergency_capable, created_at, updated_at`

type hospitalRepository struct {
	BaseRepository
}

func NewHospitalRepository(base BaseRepository) repository.HospitalRepository {
	return &hospitalRepository{base}
}

func (r *hospitalRepository) Create(ctx context.Context, h *model.Hospital) error {
	query := `
		INSERT INTO hospitals (` + hospitalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}

	_, err := r.exec(ctx, query,
		h.ID, h.Name, h.Address, h.Phone, h.Email, h.EmergencyCapable, h.CreatedAt, h.UpdatedAt,
	)
	return mapError(err, "hospital")
}

func (r *hospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	query := `SELECT ` + hospitalColumns + ` FROM hospitals WHERE id = $1`

	var h model.Hospital
	if err := r.get(ctx, &h, query, id); err != nil {
		return nil, mapError(err, "hospital")
	}
	return &h, nil
}

func (r *hospitalRepository) List(ctx context.Context, emergencyOnly bool) ([]*model.Hospital, error) {
	query := `SELECT ` + hospitalColumns + ` FROM hospitals`
	if emergencyOnly {
		query += ` WHERE emergency_capable`
	}
	query += ` ORDER BY name ASC`

	hospitals := []*model.Hospital{}
	if err := r.selectAll(ctx, &hospitals, query); err != nil {
		return nil, mapError(err, "hospital")
	}
	return hospitals, nil
}
