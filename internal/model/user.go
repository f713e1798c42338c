package model

import (
	"time"

	"github.com/google/uuid"
)

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User represents a system user
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DoctorProfile carries the per-doctor consultation capacity.
type DoctorProfile struct {
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Specialization string    `json:"specialization" db:"specialization"`
	// Zero means the configured default applies.
	MaxConcurrent int       `json:"max_concurrent_consultations" db:"max_concurrent_consultations"`
	Accepting     bool      `json:"accepting" db:"accepting"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
