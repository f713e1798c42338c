package model

import (
	"time"

	"github.com/google/uuid"
)

type Hospital struct {
	ID               uuid.UUID `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Address          string    `json:"address" db:"address"`
	Phone            *string   `json:"phone,omitempty" db:"phone"`
	Email            *string   `json:"email,omitempty" db:"email"`
	EmergencyCapable bool      `json:"emergency_capable" db:"emergency_capable"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type CreateHospitalRequest struct {
	Name             string `json:"name" binding:"required,max=200"`
	Address          string `json:"address" binding:"required,max=500"`
	Phone            string `json:"phone" binding:"omitempty,max=50"`
	Email            string `json:"email" binding:"omitempty,email"`
	EmergencyCapable bool   `json:"emergency_capable"`
}
