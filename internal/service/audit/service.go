package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	Changes  interface{}
	Metadata interface{}
}

// Log writes an audit row. Inside WithinTx the row commits or rolls back with the caller's change.
func (s *Service) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	var changes, metadata json.RawMessage
	var err error

	if opts != nil {
		if opts.Changes != nil {
			changes, err = json.Marshal(opts.Changes)
			if err != nil {
				return fmt.Errorf("failed to marshal audit changes: %w", err)
			}
		}
		if opts.Metadata != nil {
			metadata, err = json.Marshal(opts.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal audit metadata: %w", err)
			}
		}
	}

	log := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		Metadata:   metadata,
		CreatedAt:  s.now().UTC(),
	}

	return s.repo.Create(ctx, log)
}

// List is restricted to admins.
func (s *Service) List(ctx context.Context, actor model.Actor, filters *model.AuditLogFilters) ([]*model.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only admins can read the audit trail")
	}
	return s.repo.List(ctx, filters)
}

// DeleteOlderThan removes rows older than the retention window.
func (s *Service) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, s.now().Add(-retention))
}
