package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

const doctorColumns = `user_id, specialization, max_concurrent_consultations, accepting, created_at, updated_at`

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

func (r *doctorRepository) Create(ctx context.Context, profile *model.DoctorProfile) error {
	query := `
		INSERT INTO doctor_profiles (` + doctorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	profile.UpdatedAt = profile.CreatedAt

	_, err := r.exec(ctx, query,
		profile.UserID,
		profile.Specialization,
		profile.MaxConcurrent,
		profile.Accepting,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return mapError(err, "doctor profile")
}

func (r *doctorRepository) Get(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctor_profiles WHERE user_id = $1`

	var profile model.DoctorProfile
	if err := r.get(ctx, &profile, query, userID); err != nil {
		return nil, mapError(err, "doctor profile")
	}
	return &profile, nil
}

func (r *doctorRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctor_profiles WHERE user_id = $1 FOR UPDATE`

	var profile model.DoctorProfile
	if err := r.get(ctx, &profile, query, userID); err != nil {
		return nil, mapError(err, "doctor profile")
	}
	return &profile, nil
}
