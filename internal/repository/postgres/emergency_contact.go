package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

const contactColumns = `id, emergency_id, contact_type, name, phone, status, response, responded_at, created_at`

type emergencyContactRepository struct {
	BaseRepository
}

func NewEmergencyContactRepository(base BaseRepository) repository.EmergencyContactRepository {
	return &emergencyContactRepository{base}
}

func (r *emergencyContactRepository) Create(ctx context.Context, c *model.EmergencyContact) error {
	query := `
		INSERT INTO emergency_contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	_, err := r.exec(ctx, query,
		c.ID,
		c.EmergencyID,
		c.Type,
		c.Name,
		c.Phone,
		c.Status,
		c.Response,
		c.RespondedAt,
		c.CreatedAt,
	)
	return mapError(err, "emergency contact")
}

func (r *emergencyContactRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.EmergencyContact, error) {
	query := `SELECT ` + contactColumns + ` FROM emergency_contacts WHERE id = $1 FOR UPDATE`

	var c model.EmergencyContact
	if err := r.get(ctx, &c, query, id); err != nil {
		return nil, mapError(err, "emergency contact")
	}
	return &c, nil
}

// RecordResponse only touches contacts still pending.
func (r *emergencyContactRepository) RecordResponse(ctx context.Context, c *model.EmergencyContact) error {
	query := `
		UPDATE emergency_contacts
		SET status = $1, response = $2, responded_at = $3
		WHERE id = $4 AND status = 'pending'
	`
	res, err := r.exec(ctx, query, c.Status, c.Response, c.RespondedAt, c.ID)
	if err != nil {
		return mapError(err, "emergency contact")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, "emergency contact")
	}
	if n == 0 {
		return apperrors.InvalidState("emergency contact already has a response")
	}
	return nil
}

func (r *emergencyContactRepository) ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*model.EmergencyContact, error) {
	query := `
		SELECT ` + contactColumns + ` FROM emergency_contacts
		WHERE emergency_id = $1
		ORDER BY created_at ASC
	`
	contacts := []*model.EmergencyContact{}
	if err := r.selectAll(ctx, &contacts, query, emergencyID); err != nil {
		return nil, mapError(err, "emergency contact")
	}
	return contacts, nil
}
