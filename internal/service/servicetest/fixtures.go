// Package servicetest seeds memory repositories for service tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/repository/memory"
)

// Clock is a settable time source.
type Clock struct {
	T time.Time
}

func NewClock() *Clock {
	return &Clock{T: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

type Env struct {
	Store *memory.Store
	Repos repository.Repositories
	Clock *Clock
}

func NewEnv() *Env {
	store := memory.NewStore()
	return &Env{Store: store, Repos: store.Repositories(), Clock: NewClock()}
}

// User creates an active user with role and returns its actor.
func (e *Env) User(t *testing.T, role model.Role) model.Actor {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.Repos.Users.Create(context.Background(), &model.User{
		ID:        id,
		Email:     id.String() + "@example.test",
		Name:      string(role) + " " + id.String()[:8],
		Role:      role,
		Status:    model.UserStatusActive,
		CreatedAt: e.Clock.Now(),
		UpdatedAt: e.Clock.Now(),
	}))
	return model.Actor{ID: id, Role: role}
}

// Doctor creates a doctor with a profile; maxConcurrent 0 means the configured default.
func (e *Env) Doctor(t *testing.T, maxConcurrent int) model.Actor {
	t.Helper()
	actor := e.User(t, model.RoleDoctor)
	require.NoError(t, e.Repos.Doctors.Create(context.Background(), &model.DoctorProfile{
		UserID:         actor.ID,
		Specialization: "general practice",
		MaxConcurrent:  maxConcurrent,
		Accepting:      true,
		CreatedAt:      e.Clock.Now(),
		UpdatedAt:      e.Clock.Now(),
	}))
	return actor
}

func (e *Env) Patient(t *testing.T) model.Actor {
	t.Helper()
	return e.User(t, model.RolePatient)
}

func (e *Env) Admin(t *testing.T) model.Actor {
	t.Helper()
	return e.User(t, model.RoleAdmin)
}

// EventTypes lists the outbox event types written so far, in order.
func (e *Env) EventTypes() []string {
	events := e.Store.OutboxEvents()
	types := make([]string, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.EventType)
	}
	return types
}
