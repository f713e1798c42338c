package message_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/consultation"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/internal/service/message"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	"github.com/jwalitptl/telemed-api/internal/service/servicetest"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

func setup(t *testing.T) (*servicetest.Env, *message.Service, *consultation.Service, *relationship.Service) {
	t.Helper()
	env := servicetest.NewEnv()
	auditor := audit.NewService(env.Repos.Audit)
	events := event.NewService(env.Repos.Outbox)
	rels := relationship.NewService(env.Repos.Tx, env.Repos.Relationships, env.Repos.Users, auditor, events, nil, relationship.Config{})
	consultations := consultation.NewService(env.Repos.Tx, env.Repos.Consultations, env.Repos.Doctors, env.Repos.Users, rels, auditor, events, nil, consultation.Config{})
	svc := message.NewService(env.Repos.Tx, env.Repos.Messages, env.Repos.Consultations, rels, auditor, events)
	return env, svc, consultations, rels
}

func TestSendAndList(t *testing.T) {
	env, svc, consultations, _ := setup(t)
	ctx := context.Background()
	patient, doctor := env.Patient(t), env.Doctor(t, 0)

	c, err := consultations.Create(ctx, patient, &model.CreateConsultationRequest{ComplaintType: "cough", Description: "dry cough"})
	require.NoError(t, err)

	_, err = svc.Send(ctx, patient, c.ID, "hello?")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))

	_, err = consultations.Accept(ctx, doctor, c.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, patient, c.ID, "  ")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	_, err = svc.Send(ctx, env.Patient(t), c.ID, "intruder")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = svc.Send(ctx, patient, c.ID, "it started yesterday")
	require.NoError(t, err)
	_, err = svc.Send(ctx, doctor, c.ID, "any fever?")
	require.NoError(t, err)

	msgs, err := svc.List(ctx, doctor, c.ID, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "it started yesterday", msgs[0].Body)
	assert.Equal(t, doctor.ID, msgs[1].SenderID)
	assert.Contains(t, env.EventTypes(), event.MessageSent)
}

func TestSendRequiresActiveRelationship(t *testing.T) {
	env, svc, consultations, rels := setup(t)
	ctx := context.Background()
	patient, doctor := env.Patient(t), env.Doctor(t, 0)

	c, err := consultations.Create(ctx, patient, &model.CreateConsultationRequest{ComplaintType: "cough", Description: "dry cough"})
	require.NoError(t, err)
	_, err = consultations.Accept(ctx, doctor, c.ID)
	require.NoError(t, err)

	_, rel, err := rels.CheckRelationship(ctx, doctor.ID, patient.ID, false)
	require.NoError(t, err)
	_, err = rels.Terminate(ctx, patient, rel.ID, "changed provider")
	require.NoError(t, err)

	_, err = svc.Send(ctx, doctor, c.ID, "still there?")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
	_, err = svc.List(ctx, doctor, c.ID, model.Pagination{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	msgs, err := svc.List(ctx, patient, c.ID, model.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
