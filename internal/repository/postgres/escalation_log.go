package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

type escalationLogRepository struct {
	BaseRepository
}

func NewEscalationLogRepository(base BaseRepository) repository.EscalationLogRepository {
	return &escalationLogRepository{base}
}

func (r *escalationLogRepository) Append(ctx context.Context, entry *model.EmergencyEscalationLog) error {
	query := `
		INSERT INTO emergency_escalation_logs (
			id, emergency_id, consultation_id, action, performed_by, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	details := entry.Details
	if len(details) == 0 {
		details = []byte(`{}`)
	}

	_, err := r.exec(ctx, query,
		entry.ID,
		entry.EmergencyID,
		entry.ConsultationID,
		entry.Action,
		entry.PerformedBy,
		[]byte(details),
		entry.CreatedAt,
	)
	return mapError(err, "escalation log")
}

func (r *escalationLogRepository) ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*model.EmergencyEscalationLog, error) {
	query := `
		SELECT id, emergency_id, consultation_id, action, performed_by, details, created_at
		FROM emergency_escalation_logs
		WHERE emergency_id = $1
		ORDER BY created_at ASC, id ASC
	`
	entries := []*model.EmergencyEscalationLog{}
	if err := r.selectAll(ctx, &entries, query, emergencyID); err != nil {
		return nil, mapError(err, "escalation log")
	}
	return entries, nil
}
