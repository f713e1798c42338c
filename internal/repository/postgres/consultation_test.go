package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

var consultationRowColumns = []string{
	"id", "patient_id", "doctor_id", "complaint_type", "description", "status",
	"start_time", "end_time", "closing_notes", "cancel_reason", "rejection_count", "version",
	"created_at", "updated_at", "deleted_at",
}

func TestConsultationGet_Found(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	id, patientID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(consultationRowColumns).
		AddRow(id.String(), patientID.String(), nil, "fever", "high temperature", "pending",
			nil, nil, nil, nil, 1, 3, now, now, nil)

	mock.ExpectQuery(`SELECT .* FROM consultations WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(id).
		WillReturnRows(rows)

	c, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, patientID, c.PatientID)
	assert.Nil(t, c.DoctorID)
	assert.Equal(t, model.ConsultationStatusPending, c.Status)
	assert.Equal(t, 1, c.RejectionCount)
	assert.Equal(t, 3, c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationGet_NotFound(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	id := uuid.New()
	mock.ExpectQuery(`SELECT .* FROM consultations`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationUpdate_BumpsVersion(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	doctorID := uuid.New()
	now := time.Now().UTC()
	c := &model.Consultation{
		Base:      model.Base{ID: uuid.New(), UpdatedAt: now},
		DoctorID:  &doctorID,
		Status:    model.ConsultationStatusActive,
		StartTime: &now,
		Version:   2,
	}

	mock.ExpectExec(`UPDATE consultations .* WHERE id = \$9 AND version = \$10 AND deleted_at IS NULL`).
		WithArgs(sqlmock.AnyArg(), "active", sqlmock.AnyArg(), nil, nil, nil, 0, now, c.ID, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), c))
	assert.Equal(t, 3, c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationUpdate_StaleVersionConflicts(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	c := &model.Consultation{Base: model.Base{ID: uuid.New()}, Status: model.ConsultationStatusPending, Version: 4}

	mock.ExpectExec(`UPDATE consultations`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), c)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
	assert.Equal(t, 4, c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationCountActiveByDoctor(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	doctorID := uuid.New()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM consultations`).
		WithArgs(doctorID, "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountActiveByDoctor(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationList_FiltersTombstonesAndStatus(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	patientID := uuid.New()
	mock.ExpectQuery(`FROM "consultations" WHERE .*"deleted_at" IS NULL.*"patient_id" = \$1.*"status" = \$2.*ORDER BY "created_at" DESC`).
		WillReturnRows(sqlmock.NewRows(consultationRowColumns))

	out, err := repo.List(context.Background(), &model.ConsultationFilters{
		PatientID: &patientID,
		Status:    model.ConsultationStatusActive,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationSoftDelete_MissingRow(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewConsultationRepository(base)

	mock.ExpectExec(`UPDATE consultations SET deleted_at`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), uuid.New(), time.Now())
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
