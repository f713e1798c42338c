package hospital_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/internal/service/hospital"
	"github.com/jwalitptl/telemed-api/internal/service/servicetest"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

func newService(env *servicetest.Env) *hospital.Service {
	return hospital.NewService(env.Repos.Tx, env.Repos.Hospitals, audit.NewService(env.Repos.Audit), time.Minute, time.Minute)
}

func TestCreateRequiresAdmin(t *testing.T) {
	env := servicetest.NewEnv()
	svc := newService(env)
	ctx := context.Background()

	_, err := svc.Create(ctx, env.Doctor(t, 0), &model.CreateHospitalRequest{Name: "RSUD X", Address: "Jl. Merdeka 1"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = svc.Create(ctx, env.Admin(t), &model.CreateHospitalRequest{Name: " ", Address: "Jl. Merdeka 1"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestListIsInvalidatedOnCreate(t *testing.T) {
	env := servicetest.NewEnv()
	svc := newService(env)
	ctx := context.Background()
	admin := env.Admin(t)

	_, err := svc.Create(ctx, admin, &model.CreateHospitalRequest{Name: "RSUD X", Address: "Jl. Merdeka 1", EmergencyCapable: true})
	require.NoError(t, err)

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.Create(ctx, admin, &model.CreateHospitalRequest{Name: "Klinik Sehat", Address: "Jl. Sudirman 5", Phone: "021-555"})
	require.NoError(t, err)

	all, err = svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	emergency, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, emergency, 1)
	assert.Equal(t, "RSUD X", emergency[0].Name)
}

func TestGetServesFromCache(t *testing.T) {
	env := servicetest.NewEnv()
	svc := newService(env)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, env.Repos.Hospitals.Create(ctx, &model.Hospital{ID: id, Name: "RSUD X", Address: "Jl. Merdeka 1"}))

	first, err := svc.Get(ctx, id)
	require.NoError(t, err)
	first.Name = "mutated by caller"

	second, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "RSUD X", second.Name)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}
