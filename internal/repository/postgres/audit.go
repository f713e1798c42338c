package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, entity_type, entity_id, changes, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	_, err := r.exec(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		nullableJSON(log.Changes),
		nullableJSON(log.Metadata),
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, error) {
	page := filters.Pagination.Normalize()

	ds := dialect.From("audit_logs").Prepared(true).
		Select("id", "user_id", "action", "entity_type", "entity_id", "changes", "metadata", "created_at")
	if filters.UserID != nil {
		ds = ds.Where(goqu.Ex{"user_id": *filters.UserID})
	}
	if filters.EntityType != "" {
		ds = ds.Where(goqu.Ex{"entity_type": filters.EntityType})
	}
	if filters.EntityID != nil {
		ds = ds.Where(goqu.Ex{"entity_id": *filters.EntityID})
	}
	if filters.Action != "" {
		ds = ds.Where(goqu.Ex{"action": filters.Action})
	}
	ds = ds.Order(goqu.C("created_at").Desc()).
		Limit(uint(page.Limit)).
		Offset(uint(page.Offset))

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	logs := []*model.AuditLog{}
	if err := r.selectAll(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return result.RowsAffected()
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
