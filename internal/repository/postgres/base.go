package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/telemed-api/internal/repository"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type txKey struct{}

// dialect builds the filterable list queries.
var dialect = goqu.Dialect("postgres")

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// NewTxManager exposes transaction handling to services.
func NewTxManager(db *sqlx.DB) repository.TxManager {
	return &BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithinTx executes fn within a transaction stored in the context handed to fn.
// When ctx already carries a transaction fn joins it.
func (r *BaseRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, or the pool.
func (r *BaseRepository) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

func (r *BaseRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, r.conn(ctx), dest, query, args...)
}

func (r *BaseRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, r.conn(ctx), dest, query, args...)
}

func (r *BaseRepository) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.conn(ctx).ExecContext(ctx, query, args...)
}

// execOne fails with NotFound when no row was affected.
func (r *BaseRepository) execOne(ctx context.Context, resource, query string, args ...interface{}) error {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return mapError(err, resource)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(resource, nil)
	}
	return nil
}

// mapError translates driver errors into application errors.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(resource, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return apperrors.Conflict(fmt.Sprintf("%s already exists", resource), err)
		case foreignKeyViolation:
			return apperrors.Validation("%s references a missing record", resource)
		}
	}
	return fmt.Errorf("failed to query %s: %w", resource, err)
}

// NewRepositories wires every postgres repository over db.
func NewRepositories(db *sqlx.DB) repository.Repositories {
	base := NewBaseRepository(db)
	return repository.Repositories{
		Tx:             NewTxManager(db),
		Users:          NewUserRepository(base),
		Doctors:        NewDoctorRepository(base),
		Consultations:  NewConsultationRepository(base),
		Relationships:  NewRelationshipRepository(base),
		Emergencies:    NewEmergencyRepository(base),
		Contacts:       NewEmergencyContactRepository(base),
		EscalationLogs: NewEscalationLogRepository(base),
		Hospitals:      NewHospitalRepository(base),
		Messages:       NewMessageRepository(base),
		Prescriptions:  NewPrescriptionRepository(base),
		Audit:          NewAuditRepository(base),
		Outbox:         NewOutboxRepository(base),
	}
}
