package model

import (
	"time"

	"github.com/google/uuid"
)

type ConsultationStatus string

const (
	ConsultationStatusPending   ConsultationStatus = "pending"
	ConsultationStatusActive    ConsultationStatus = "active"
	ConsultationStatusClosed    ConsultationStatus = "closed"
	ConsultationStatusCancelled ConsultationStatus = "cancelled"
)

func (s ConsultationStatus) Valid() bool {
	switch s {
	case ConsultationStatusPending, ConsultationStatusActive, ConsultationStatusClosed, ConsultationStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s ConsultationStatus) IsTerminal() bool {
	return s == ConsultationStatusClosed || s == ConsultationStatusCancelled
}

type Consultation struct {
	Base
	PatientID      uuid.UUID          `json:"patient_id" db:"patient_id"`
	DoctorID       *uuid.UUID         `json:"doctor_id,omitempty" db:"doctor_id"`
	ComplaintType  string             `json:"complaint_type" db:"complaint_type"`
	Description    string             `json:"description" db:"description"`
	Status         ConsultationStatus `json:"status" db:"status"`
	StartTime      *time.Time         `json:"start_time,omitempty" db:"start_time"`
	EndTime        *time.Time         `json:"end_time,omitempty" db:"end_time"`
	ClosingNotes   *string            `json:"closing_notes,omitempty" db:"closing_notes"`
	CancelReason   *string            `json:"cancel_reason,omitempty" db:"cancel_reason"`
	RejectionCount int                `json:"rejection_count" db:"rejection_count"`
	Version        int                `json:"version" db:"version"`
}

// HasDoctor reports whether id is the assigned doctor.
func (c *Consultation) HasDoctor(id uuid.UUID) bool {
	return c.DoctorID != nil && *c.DoctorID == id
}

// IsParticipant reports whether id is the patient or the assigned doctor.
func (c *Consultation) IsParticipant(id uuid.UUID) bool {
	return c.PatientID == id || c.HasDoctor(id)
}

type CreateConsultationRequest struct {
	// Only honoured for admins creating on behalf of a patient.
	PatientID     *uuid.UUID `json:"patient_id"`
	ComplaintType string     `json:"complaint_type" binding:"required,max=100"`
	Description   string     `json:"description" binding:"max=5000"`
}

type RejectConsultationRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type CompleteConsultationRequest struct {
	ClosingNotes string `json:"closing_notes" binding:"max=10000"`
}

type CancelConsultationRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type ConsultationFilters struct {
	PatientID *uuid.UUID         `json:"patient_id" form:"-"`
	DoctorID  *uuid.UUID         `json:"doctor_id" form:"-"`
	Status    ConsultationStatus `json:"status" form:"status"`
	Pagination
}
