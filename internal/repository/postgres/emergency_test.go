package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

func TestEscalationLogAppend_DefaultsDetails(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewEscalationLogRepository(base)

	entry := &model.EmergencyEscalationLog{
		EmergencyID:    uuid.New(),
		ConsultationID: uuid.New(),
		Action:         model.ActionAmbulanceCalled,
		PerformedBy:    uuid.New(),
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO emergency_escalation_logs`).
		WithArgs(sqlmock.AnyArg(), entry.EmergencyID, entry.ConsultationID, "ambulance_called",
			entry.PerformedBy, []byte(`{}`), entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalationLogListByEmergency_Ordered(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewEscalationLogRepository(base)

	emergencyID, consultationID, actor := uuid.New(), uuid.New(), uuid.New()
	t0 := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "emergency_id", "consultation_id", "action", "performed_by", "details", "created_at"}).
		AddRow(uuid.NewString(), emergencyID.String(), consultationID.String(), "emergency_created", actor.String(), []byte(`{"level":"critical"}`), t0).
		AddRow(uuid.NewString(), emergencyID.String(), consultationID.String(), "resolved", actor.String(), []byte(`{}`), t0.Add(time.Minute))

	mock.ExpectQuery(`FROM emergency_escalation_logs\s+WHERE emergency_id = \$1\s+ORDER BY created_at ASC`).
		WithArgs(emergencyID).
		WillReturnRows(rows)

	entries, err := repo.ListByEmergency(context.Background(), emergencyID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionEmergencyCreated, entries[0].Action)
	assert.JSONEq(t, `{"level":"critical"}`, string(entries[0].Details))
	assert.Equal(t, model.ActionResolved, entries[1].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmergencyContactRecordResponse_OnlyWhilePending(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewEmergencyContactRepository(base)

	response := "bed reserved"
	now := time.Now().UTC()
	contact := &model.EmergencyContact{
		ID:          uuid.New(),
		Status:      model.ContactStatusReached,
		Response:    &response,
		RespondedAt: &now,
	}

	mock.ExpectExec(`UPDATE emergency_contacts .* WHERE id = \$4 AND status = 'pending'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordResponse(context.Background(), contact)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmergencyUpdate_KeepsFirstEscalation(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewEmergencyRepository(base)

	e := &model.Emergency{Base: model.Base{ID: uuid.New()}, Status: model.EmergencyStatusEscalated}

	mock.ExpectExec(`escalated_at = COALESCE\(escalated_at, \$5\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationshipFindCurrent_NoneIsNil(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewRelationshipRepository(base)

	doctorID, patientID := uuid.New(), uuid.New()
	mock.ExpectQuery(`status <> 'terminated'`).
		WithArgs(doctorID, patientID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rel, err := repo.FindCurrent(context.Background(), doctorID, patientID)
	require.NoError(t, err)
	assert.Nil(t, rel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationshipLockPair(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewRelationshipRepository(base)

	doctorID, patientID := uuid.New(), uuid.New()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(doctorID.String(), patientID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockPair(context.Background(), doctorID, patientID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxCreate_SetsPending(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewOutboxRepository(base)

	payload, _ := json.Marshal(map[string]string{"emergency_id": uuid.NewString()})
	evt := &model.OutboxEvent{EventType: "emergency.escalated", Payload: payload}

	mock.ExpectExec(`INSERT INTO outbox_events`).
		WithArgs(sqlmock.AnyArg(), "emergency.escalated", []byte(payload), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), evt))
	assert.Equal(t, model.OutboxStatusPending, evt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
