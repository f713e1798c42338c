package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EmergencyLevel string

const (
	EmergencyLevelCritical EmergencyLevel = "critical"
	EmergencyLevelSevere   EmergencyLevel = "severe"
	EmergencyLevelModerate EmergencyLevel = "moderate"
)

func (l EmergencyLevel) Valid() bool {
	switch l {
	case EmergencyLevelCritical, EmergencyLevelSevere, EmergencyLevelModerate:
		return true
	}
	return false
}

type EmergencyStatus string

const (
	EmergencyStatusOpen      EmergencyStatus = "open"
	EmergencyStatusEscalated EmergencyStatus = "escalated"
	EmergencyStatusReferred  EmergencyStatus = "referred"
	EmergencyStatusResolved  EmergencyStatus = "resolved"
)

type Emergency struct {
	Base
	ConsultationID      uuid.UUID       `json:"consultation_id" db:"consultation_id"`
	PatientID           uuid.UUID       `json:"patient_id" db:"patient_id"`
	DoctorID            *uuid.UUID      `json:"doctor_id,omitempty" db:"doctor_id"`
	ReportedBy          uuid.UUID       `json:"reported_by" db:"reported_by"`
	Level               EmergencyLevel  `json:"level" db:"level"`
	Reason              string          `json:"reason" db:"reason"`
	Status              EmergencyStatus `json:"status" db:"status"`
	HospitalID          *uuid.UUID      `json:"hospital_id,omitempty" db:"hospital_id"`
	HospitalName        *string         `json:"hospital_name,omitempty" db:"hospital_name"`
	HospitalAddress     *string         `json:"hospital_address,omitempty" db:"hospital_address"`
	EscalatedAt         *time.Time      `json:"escalated_at,omitempty" db:"escalated_at"`
	AmbulanceCalledAt   *time.Time      `json:"ambulance_called_at,omitempty" db:"ambulance_called_at"`
	AmbulanceETA        *string         `json:"ambulance_eta,omitempty" db:"ambulance_eta"`
	ReferralLetter      *string         `json:"referral_letter,omitempty" db:"referral_letter"`
	ReferralGeneratedAt *time.Time      `json:"referral_generated_at,omitempty" db:"referral_generated_at"`
	ResolutionNotes     *string         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt          *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

func (e *Emergency) IsResolved() bool {
	return e.Status == EmergencyStatusResolved
}

// HasHospital reports whether a receiving hospital has been named.
func (e *Emergency) HasHospital() bool {
	return e.HospitalName != nil && *e.HospitalName != ""
}

type ContactType string

const (
	ContactTypeHospital  ContactType = "hospital"
	ContactTypeAmbulance ContactType = "ambulance"
	ContactTypePolice    ContactType = "police"
	ContactTypeFamily    ContactType = "family"
)

func (t ContactType) Valid() bool {
	switch t {
	case ContactTypeHospital, ContactTypeAmbulance, ContactTypePolice, ContactTypeFamily:
		return true
	}
	return false
}

type ContactStatus string

const (
	ContactStatusPending     ContactStatus = "pending"
	ContactStatusReached     ContactStatus = "reached"
	ContactStatusUnreachable ContactStatus = "unreachable"
	ContactStatusDeclined    ContactStatus = "declined"
)

type EmergencyContact struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	EmergencyID uuid.UUID     `json:"emergency_id" db:"emergency_id"`
	Type        ContactType   `json:"contact_type" db:"contact_type"`
	Name        string        `json:"name" db:"name"`
	Phone       *string       `json:"phone,omitempty" db:"phone"`
	Status      ContactStatus `json:"status" db:"status"`
	Response    *string       `json:"response,omitempty" db:"response"`
	RespondedAt *time.Time    `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

type EscalationAction string

const (
	ActionEmergencyCreated   EscalationAction = "emergency_created"
	ActionHospitalEscalation EscalationAction = "hospital_escalation"
	ActionAmbulanceCalled    EscalationAction = "ambulance_called"
	ActionReferralGenerated  EscalationAction = "referral_generated"
	ActionContactAdded       EscalationAction = "contact_added"
	ActionResolved           EscalationAction = "resolved"
)

// EmergencyEscalationLog is written once and never changed.
type EmergencyEscalationLog struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	EmergencyID    uuid.UUID        `json:"emergency_id" db:"emergency_id"`
	ConsultationID uuid.UUID        `json:"consultation_id" db:"consultation_id"`
	Action         EscalationAction `json:"action" db:"action"`
	PerformedBy    uuid.UUID        `json:"performed_by" db:"performed_by"`
	Details        json.RawMessage  `json:"details" db:"details"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// HospitalInfo names the receiving hospital, either from the directory or ad hoc.
type HospitalInfo struct {
	HospitalID *uuid.UUID `json:"hospital_id"`
	Name       string     `json:"name" binding:"max=200"`
	Address    string     `json:"address" binding:"max=500"`
	Phone      string     `json:"phone" binding:"max=50"`
}

type CreateEmergencyRequest struct {
	Level  EmergencyLevel `json:"level" binding:"required"`
	Reason string         `json:"reason" binding:"max=2000"`
}

type AmbulanceRequest struct {
	ETA string `json:"eta" binding:"required,max=100"`
}

type ResolveEmergencyRequest struct {
	Notes string `json:"notes" binding:"max=5000"`
}

type AddContactRequest struct {
	Type  ContactType `json:"contact_type" binding:"required"`
	Name  string      `json:"name" binding:"required,max=200"`
	Phone string      `json:"phone" binding:"max=50"`
}

type ContactResponseRequest struct {
	Status   ContactStatus `json:"status" binding:"required,oneof=reached unreachable declined"`
	Response string        `json:"response" binding:"max=2000"`
}
