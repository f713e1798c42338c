package model

import (
	"time"

	"github.com/google/uuid"
)

type RelationshipStatus string

const (
	RelationshipStatusActive     RelationshipStatus = "active"
	RelationshipStatusInactive   RelationshipStatus = "inactive"
	RelationshipStatusSuspended  RelationshipStatus = "suspended"
	RelationshipStatusTerminated RelationshipStatus = "terminated"
)

type EstablishmentMethod string

const (
	MethodConsultation    EstablishmentMethod = "consultation"
	MethodDoctorInitiated EstablishmentMethod = "doctor_initiated"
	MethodReferral        EstablishmentMethod = "referral"
	MethodEmergency       EstablishmentMethod = "emergency"
	MethodPatientRequest  EstablishmentMethod = "patient_request"
)

func (m EstablishmentMethod) Valid() bool {
	switch m {
	case MethodConsultation, MethodDoctorInitiated, MethodReferral, MethodEmergency, MethodPatientRequest:
		return true
	}
	return false
}

// DefaultReestablishMethods may open a new relationship after a termination.
var DefaultReestablishMethods = []EstablishmentMethod{
	MethodConsultation,
	MethodReferral,
	MethodEmergency,
	MethodPatientRequest,
}

type DoctorPatientRelationship struct {
	ID                uuid.UUID           `json:"id" db:"id"`
	DoctorID          uuid.UUID           `json:"doctor_id" db:"doctor_id"`
	PatientID         uuid.UUID           `json:"patient_id" db:"patient_id"`
	Method            EstablishmentMethod `json:"establishment_method" db:"establishment_method"`
	Status            RelationshipStatus  `json:"status" db:"status"`
	EstablishedAt     time.Time           `json:"established_at" db:"established_at"`
	LastAccessAt      *time.Time          `json:"last_access_at,omitempty" db:"last_access_at"`
	TerminatedAt      *time.Time          `json:"terminated_at,omitempty" db:"terminated_at"`
	TerminationReason *string             `json:"termination_reason,omitempty" db:"termination_reason"`
	ConsultationID    *uuid.UUID          `json:"consultation_id,omitempty" db:"consultation_id"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
}

func (r *DoctorPatientRelationship) IsActive() bool {
	return r.Status == RelationshipStatusActive
}

func (r *DoctorPatientRelationship) Involves(id uuid.UUID) bool {
	return r.DoctorID == id || r.PatientID == id
}

type EstablishRelationshipRequest struct {
	DoctorID       uuid.UUID           `json:"doctor_id" binding:"required"`
	PatientID      uuid.UUID           `json:"patient_id" binding:"required"`
	Method         EstablishmentMethod `json:"establishment_method" binding:"required"`
	ConsultationID *uuid.UUID          `json:"consultation_id"`
}

type TerminateRelationshipRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// RelationshipCheck is the result of a relationship lookup.
type RelationshipCheck struct {
	Exists       bool                       `json:"exists"`
	Relationship *DoctorPatientRelationship `json:"relationship,omitempty"`
}
