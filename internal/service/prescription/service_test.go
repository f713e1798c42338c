package prescription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/consultation"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/internal/service/prescription"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	"github.com/jwalitptl/telemed-api/internal/service/servicetest"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

func setup(t *testing.T) (*servicetest.Env, *prescription.Service, *consultation.Service, *relationship.Service) {
	t.Helper()
	env := servicetest.NewEnv()
	auditor := audit.NewService(env.Repos.Audit)
	events := event.NewService(env.Repos.Outbox)
	rels := relationship.NewService(env.Repos.Tx, env.Repos.Relationships, env.Repos.Users, auditor, events, nil, relationship.Config{})
	consultations := consultation.NewService(env.Repos.Tx, env.Repos.Consultations, env.Repos.Doctors, env.Repos.Users, rels, auditor, events, nil, consultation.Config{})
	svc := prescription.NewService(env.Repos.Tx, env.Repos.Prescriptions, env.Repos.Consultations, rels, auditor, events)
	return env, svc, consultations, rels
}

func TestIssueAndList(t *testing.T) {
	env, svc, consultations, _ := setup(t)
	ctx := context.Background()

	patient, doctor, stranger := env.Patient(t), env.Doctor(t, 0), env.Doctor(t, 0)
	req := &model.CreatePrescriptionRequest{Medication: "paracetamol", Dosage: "500mg every 6h", Instructions: "after meals"}

	c, err := consultations.Create(ctx, patient, &model.CreateConsultationRequest{ComplaintType: "fever", Description: "38.5°C since morning"})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, doctor, c.ID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = consultations.Accept(ctx, doctor, c.ID)
	require.NoError(t, err)
	_, err = consultations.Complete(ctx, doctor, c.ID, "viral fever")
	require.NoError(t, err)

	_, err = svc.Issue(ctx, doctor, c.ID, &model.CreatePrescriptionRequest{Medication: "paracetamol"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	_, err = svc.Issue(ctx, stranger, c.ID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	p, err := svc.Issue(ctx, doctor, c.ID, req)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, p.PatientID)
	assert.Equal(t, "after meals", *p.Instructions)

	byConsultation, err := svc.ListForConsultation(ctx, patient, c.ID)
	require.NoError(t, err)
	assert.Len(t, byConsultation, 1)

	byPatient, err := svc.ListForPatient(ctx, doctor, patient.ID)
	require.NoError(t, err)
	assert.Len(t, byPatient, 1)

	_, err = svc.ListForPatient(ctx, stranger, patient.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
	_, err = svc.ListForPatient(ctx, env.Patient(t), patient.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestIssueRequiresActiveRelationship(t *testing.T) {
	env, svc, consultations, rels := setup(t)
	ctx := context.Background()
	patient, doctor, admin := env.Patient(t), env.Doctor(t, 0), env.Admin(t)
	req := &model.CreatePrescriptionRequest{Medication: "amoxicillin", Dosage: "500mg every 8h"}

	c, err := consultations.Create(ctx, patient, &model.CreateConsultationRequest{ComplaintType: "ear", Description: "ear pain for 3 days"})
	require.NoError(t, err)
	_, err = consultations.Accept(ctx, doctor, c.ID)
	require.NoError(t, err)
	_, err = consultations.Complete(ctx, doctor, c.ID, "otitis media")
	require.NoError(t, err)

	_, rel, err := rels.CheckRelationship(ctx, doctor.ID, patient.ID, false)
	require.NoError(t, err)
	require.NotNil(t, rel)
	_, err = rels.Suspend(ctx, admin, rel.ID)
	require.NoError(t, err)

	_, err = svc.Issue(ctx, doctor, c.ID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized), "got %v", err)

	_, err = rels.Terminate(ctx, patient, rel.ID, "changed provider")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, doctor, c.ID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized), "got %v", err)

	issued, err := svc.ListForConsultation(ctx, patient, c.ID)
	require.NoError(t, err)
	assert.Empty(t, issued)
}
