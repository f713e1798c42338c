package emergency_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository/memory"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/consultation"
	"github.com/jwalitptl/telemed-api/internal/service/emergency"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/internal/service/hospital"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	"github.com/jwalitptl/telemed-api/internal/service/servicetest"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

type fixture struct {
	*servicetest.Env
	consultations *consultation.Service
	relationships *relationship.Service
	hospitals     *hospital.Service
	svc           *emergency.Service

	patient, doctor model.Actor
	consultation    *model.Consultation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := servicetest.NewEnv()
	auditor := audit.NewService(env.Repos.Audit)
	events := event.NewService(env.Repos.Outbox)
	rels := relationship.NewService(env.Repos.Tx, env.Repos.Relationships, env.Repos.Users, auditor, events, nil, relationship.Config{}).
		WithClock(env.Clock.Now)
	consultations := consultation.NewService(env.Repos.Tx, env.Repos.Consultations, env.Repos.Doctors, env.Repos.Users, rels, auditor, events, nil, consultation.Config{}).
		WithClock(env.Clock.Now)
	hospitals := hospital.NewService(env.Repos.Tx, env.Repos.Hospitals, auditor, time.Minute, time.Minute)
	svc := emergency.NewService(env.Repos.Tx, emergency.Repositories{
		Emergencies:   env.Repos.Emergencies,
		Contacts:      env.Repos.Contacts,
		Logs:          env.Repos.EscalationLogs,
		Consultations: env.Repos.Consultations,
		Users:         env.Repos.Users,
		Doctors:       env.Repos.Doctors,
	}, hospitals, rels, auditor, events, nil, emergency.Config{RecentWindow: 24 * time.Hour}).WithClock(env.Clock.Now)

	f := &fixture{Env: env, consultations: consultations, relationships: rels, hospitals: hospitals, svc: svc}
	f.patient, f.doctor = env.Patient(t), env.Doctor(t, 0)

	ctx := context.Background()
	c, err := consultations.Create(ctx, f.patient, &model.CreateConsultationRequest{ComplaintType: "fever", Description: "child has 39°C fever"})
	require.NoError(t, err)
	c, err = consultations.Accept(ctx, f.doctor, c.ID)
	require.NoError(t, err)
	f.consultation = c
	return f
}

func (f *fixture) raise(t *testing.T) *model.Emergency {
	t.Helper()
	e, err := f.svc.Create(context.Background(), f.doctor, f.consultation.ID, &model.CreateEmergencyRequest{
		Level:  model.EmergencyLevelCritical,
		Reason: "seizure",
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) logs(t *testing.T, id uuid.UUID) []*model.EmergencyEscalationLog {
	t.Helper()
	logs, err := f.svc.Logs(context.Background(), f.doctor, id)
	require.NoError(t, err)
	return logs
}

func actions(logs []*model.EmergencyEscalationLog) []model.EscalationAction {
	out := make([]model.EscalationAction, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func TestCreateEmergency(t *testing.T) {
	f := newFixture(t)
	e := f.raise(t)

	assert.Equal(t, model.EmergencyStatusOpen, e.Status)
	assert.Equal(t, f.consultation.ID, e.ConsultationID)
	assert.Equal(t, f.patient.ID, e.PatientID)
	assert.Equal(t, f.doctor.ID, *e.DoctorID)
	assert.Equal(t, f.doctor.ID, e.ReportedBy)

	logs := f.logs(t, e.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionEmergencyCreated, logs[0].Action)
	assert.Equal(t, f.consultation.ID, logs[0].ConsultationID)
}

func TestCreateEmergencyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.doctor, f.consultation.ID, &model.CreateEmergencyRequest{Level: "apocalyptic", Reason: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	_, err = f.svc.Create(ctx, f.doctor, f.consultation.ID, &model.CreateEmergencyRequest{Level: model.EmergencyLevelSevere, Reason: " "})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	_, err = f.svc.Create(ctx, f.Patient(t), f.consultation.ID, &model.CreateEmergencyRequest{Level: model.EmergencyLevelSevere, Reason: "fall"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Create(ctx, f.doctor, uuid.New(), &model.CreateEmergencyRequest{Level: model.EmergencyLevelSevere, Reason: "fall"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateEmergencyRequiresRecentConsultation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &model.CreateEmergencyRequest{Level: model.EmergencyLevelModerate, Reason: "rash spreading"}

	pending, err := f.consultations.Create(ctx, f.patient, &model.CreateConsultationRequest{ComplaintType: "rash", Description: "itchy rash"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.patient, pending.ID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))

	_, err = f.consultations.Complete(ctx, f.doctor, f.consultation.ID, "antihistamines")
	require.NoError(t, err)

	f.Clock.Advance(23 * time.Hour)
	_, err = f.svc.Create(ctx, f.patient, f.consultation.ID, req)
	require.NoError(t, err)

	f.Clock.Advance(2 * time.Hour)
	_, err = f.svc.Create(ctx, f.patient, f.consultation.ID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))
}

func TestEscalateTwiceKeepsFirstTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)

	f.Clock.Advance(time.Minute)
	t1 := f.Clock.Now()
	escalated, err := f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X"})
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusEscalated, escalated.Status)
	assert.Equal(t, t1, *escalated.EscalatedAt)

	f.Clock.Advance(10 * time.Minute)
	again, err := f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RS Pusat", Address: "Jl. Diponegoro 71"})
	require.NoError(t, err)
	assert.Equal(t, t1, *again.EscalatedAt)
	assert.Equal(t, "RS Pusat", *again.HospitalName)

	stored, err := f.svc.Get(ctx, f.patient, e.ID)
	require.NoError(t, err)
	assert.Equal(t, t1, *stored.EscalatedAt)

	assert.Equal(t, []model.EscalationAction{
		model.ActionEmergencyCreated,
		model.ActionHospitalEscalation,
		model.ActionHospitalEscalation,
	}, actions(f.logs(t, e.ID)))

	contacts, err := f.svc.Contacts(ctx, f.doctor, e.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, model.ContactTypeHospital, contacts[0].Type)
	assert.Equal(t, model.ContactStatusPending, contacts[0].Status)
}

func TestEscalateFromDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)

	h, err := f.hospitals.Create(ctx, f.Admin(t), &model.CreateHospitalRequest{
		Name: "RSUD X", Address: "Jl. Merdeka 1", Phone: "021-118", EmergencyCapable: true,
	})
	require.NoError(t, err)

	escalated, err := f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{HospitalID: &h.ID, Name: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, h.ID, *escalated.HospitalID)
	assert.Equal(t, "RSUD X", *escalated.HospitalName)
	assert.Equal(t, "Jl. Merdeka 1", *escalated.HospitalAddress)

	missing := uuid.New()
	_, err = f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{HospitalID: &missing})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestCallAmbulance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)

	_, err := f.svc.CallAmbulance(ctx, f.doctor, e.ID, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	called, err := f.svc.CallAmbulance(ctx, f.doctor, e.ID, "10 min")
	require.NoError(t, err)
	first := *called.AmbulanceCalledAt
	assert.Equal(t, model.EmergencyStatusOpen, called.Status)

	f.Clock.Advance(5 * time.Minute)
	updated, err := f.svc.CallAmbulance(ctx, f.doctor, e.ID, "5 min")
	require.NoError(t, err)
	assert.Equal(t, first, *updated.AmbulanceCalledAt)
	assert.Equal(t, "5 min", *updated.AmbulanceETA)

	logs := f.logs(t, e.ID)
	assert.Len(t, logs, 3)
	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(logs[2].Details, &details))
	assert.Equal(t, "5 min", details["eta"])
}

func TestReferralLetter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)

	_, err := f.svc.GenerateReferralLetter(ctx, f.doctor, e.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))

	_, err = f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X", Address: "Jl. Merdeka 1"})
	require.NoError(t, err)

	_, err = f.svc.GenerateReferralLetter(ctx, f.patient, e.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	referred, err := f.svc.GenerateReferralLetter(ctx, f.doctor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusReferred, referred.Status)
	require.NotNil(t, referred.ReferralLetter)
	letter := *referred.ReferralLetter
	assert.True(t, strings.HasPrefix(letter, "REFERRAL LETTER"))
	assert.Contains(t, letter, "RSUD X")
	assert.Contains(t, letter, "Jl. Merdeka 1")
	assert.Contains(t, letter, "seizure")
	assert.Contains(t, letter, "child has 39°C fever")
	assert.Contains(t, letter, "general practice")
	assert.Equal(t, f.Clock.Now(), *referred.ReferralGeneratedAt)

	f.Clock.Advance(time.Hour)
	again, err := f.svc.GenerateReferralLetter(ctx, f.doctor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Clock.Now(), *again.ReferralGeneratedAt)
	assert.Equal(t, model.EmergencyStatusReferred, again.Status)

	escalatedAgain, err := f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD Y"})
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusReferred, escalatedAgain.Status)
}

func TestReferralRequiresActiveRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)
	_, err := f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X"})
	require.NoError(t, err)

	ok, rel, err := f.relationships.CheckRelationship(ctx, f.doctor.ID, f.patient.ID, false)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.relationships.Suspend(ctx, f.Admin(t), rel.ID)
	require.NoError(t, err)

	logsBefore := len(f.logs(t, e.ID))
	_, err = f.svc.GenerateReferralLetter(ctx, f.doctor, e.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
	assert.Len(t, f.logs(t, e.ID), logsBefore)
}

func TestContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)

	_, err := f.svc.AddContact(ctx, f.doctor, e.ID, &model.AddContactRequest{Type: "pigeon", Name: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	contact, err := f.svc.AddContact(ctx, f.patient, e.ID, &model.AddContactRequest{
		Type: model.ContactTypeFamily, Name: "Ibu Sari", Phone: "0812-000",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ContactStatusPending, contact.Status)
	assert.Equal(t, e.ID, contact.EmergencyID)

	_, err = f.svc.RecordContactResponse(ctx, f.doctor, contact.ID, &model.ContactResponseRequest{Status: model.ContactStatusPending})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	_, err = f.svc.RecordContactResponse(ctx, f.Patient(t), contact.ID, &model.ContactResponseRequest{Status: model.ContactStatusReached})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	reached, err := f.svc.RecordContactResponse(ctx, f.doctor, contact.ID, &model.ContactResponseRequest{
		Status: model.ContactStatusReached, Response: "on the way",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ContactStatusReached, reached.Status)
	assert.Equal(t, f.Clock.Now(), *reached.RespondedAt)

	_, err = f.svc.RecordContactResponse(ctx, f.doctor, contact.ID, &model.ContactResponseRequest{Status: model.ContactStatusDeclined})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))

	assert.Equal(t, []model.EscalationAction{model.ActionEmergencyCreated, model.ActionContactAdded}, actions(f.logs(t, e.ID)))
}

func TestResolvedEmergencyRejectsEveryChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)
	contact, err := f.svc.AddContact(ctx, f.doctor, e.ID, &model.AddContactRequest{Type: model.ContactTypePolice, Name: "precinct 4"})
	require.NoError(t, err)

	resolved, err := f.svc.MarkResolved(ctx, f.doctor, e.ID, "patient stabilized")
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusResolved, resolved.Status)
	assert.Equal(t, "patient stabilized", *resolved.ResolutionNotes)
	require.NotNil(t, resolved.ResolvedAt)

	isInvalid := func(err error) {
		t.Helper()
		assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState), "got %v", err)
	}
	_, err = f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X"})
	isInvalid(err)
	_, err = f.svc.CallAmbulance(ctx, f.doctor, e.ID, "1 min")
	isInvalid(err)
	_, err = f.svc.GenerateReferralLetter(ctx, f.doctor, e.ID)
	isInvalid(err)
	_, err = f.svc.AddContact(ctx, f.doctor, e.ID, &model.AddContactRequest{Type: model.ContactTypeFamily, Name: "x"})
	isInvalid(err)
	_, err = f.svc.RecordContactResponse(ctx, f.doctor, contact.ID, &model.ContactResponseRequest{Status: model.ContactStatusReached})
	isInvalid(err)
	_, err = f.svc.MarkResolved(ctx, f.doctor, e.ID, "again")
	isInvalid(err)
}

func TestActionRollsBackWhenLogAppendFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)
	contactsBefore, err := f.svc.Contacts(ctx, f.doctor, e.ID)
	require.NoError(t, err)

	f.Store.FailOn(memory.OpLogAppend, assert.AnError)
	_, err = f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X"})
	require.ErrorIs(t, err, assert.AnError)
	f.Store.FailOn(memory.OpLogAppend, nil)

	stored, err := f.svc.Get(ctx, f.doctor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusOpen, stored.Status)
	assert.Nil(t, stored.EscalatedAt)
	assert.Nil(t, stored.HospitalName)

	contactsAfter, err := f.svc.Contacts(ctx, f.doctor, e.ID)
	require.NoError(t, err)
	assert.Len(t, contactsAfter, len(contactsBefore))
	assert.Len(t, f.logs(t, e.ID), 1)
}

func TestActionRollsBackWhenContactFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.raise(t)

	f.Store.FailOn(memory.OpContactCreate, assert.AnError)
	_, err := f.svc.CallAmbulance(ctx, f.doctor, e.ID, "10 min")
	require.Error(t, err)
	f.Store.FailOn(memory.OpContactCreate, nil)

	stored, err := f.svc.Get(ctx, f.doctor, e.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AmbulanceCalledAt)
	assert.Len(t, f.logs(t, e.ID), 1)
}

func TestArchiveKeepsLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.Admin(t)
	e := f.raise(t)

	assert.True(t, apperrors.IsCode(f.svc.Archive(ctx, admin, e.ID), apperrors.ErrInvalidState))
	_, err := f.svc.MarkResolved(ctx, f.doctor, e.ID, "")
	require.NoError(t, err)
	assert.True(t, apperrors.IsCode(f.svc.Archive(ctx, f.doctor, e.ID), apperrors.ErrUnauthorized))
	require.NoError(t, f.svc.Archive(ctx, admin, e.ID))

	_, err = f.svc.Get(ctx, admin, e.ID)
	assert.True(t, apperrors.IsNotFound(err))
	list, err := f.svc.ListByConsultation(ctx, f.patient, f.consultation.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	logs, err := f.Repos.EscalationLogs.ListByEmergency(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestScenarioEscalateAmbulanceResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.doctor, f.consultation.ID, &model.CreateEmergencyRequest{Level: model.EmergencyLevelCritical, Reason: "seizure"})
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusOpen, e.Status)
	created := len(f.logs(t, e.ID))

	f.Clock.Advance(2 * time.Minute)
	t1 := f.Clock.Now()
	escalated, err := f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X"})
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusEscalated, escalated.Status)
	assert.Equal(t, t1, *escalated.EscalatedAt)
	logs := f.logs(t, e.ID)
	require.Len(t, logs, created+1)
	assert.Equal(t, model.ActionHospitalEscalation, logs[created].Action)
	assert.Equal(t, f.consultation.ID, logs[created].ConsultationID)

	f.Clock.Advance(time.Minute)
	called, err := f.svc.CallAmbulance(ctx, f.doctor, e.ID, "10 min")
	require.NoError(t, err)
	require.NotNil(t, called.AmbulanceCalledAt)
	assert.Equal(t, model.EmergencyStatusEscalated, called.Status)
	logs = f.logs(t, e.ID)
	require.Len(t, logs, created+2)
	assert.Equal(t, model.ActionAmbulanceCalled, logs[created+1].Action)

	resolved, err := f.svc.MarkResolved(ctx, f.doctor, e.ID, "patient stabilized")
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyStatusResolved, resolved.Status)

	_, err = f.svc.EscalateToHospital(ctx, f.doctor, e.ID, model.HospitalInfo{Name: "RSUD X"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidState))

	types := f.EventTypes()
	assert.Contains(t, types, event.EmergencyEscalated)
	assert.Contains(t, types, event.EmergencyAmbulanceCalled)
	assert.Contains(t, types, event.EmergencyResolved)
}
