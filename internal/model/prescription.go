package model

import (
	"time"

	"github.com/google/uuid"
)

type Prescription struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConsultationID uuid.UUID `json:"consultation_id" db:"consultation_id"`
	DoctorID       uuid.UUID `json:"doctor_id" db:"doctor_id"`
	PatientID      uuid.UUID `json:"patient_id" db:"patient_id"`
	Medication     string    `json:"medication" db:"medication"`
	Dosage         string    `json:"dosage" db:"dosage"`
	Instructions   *string   `json:"instructions,omitempty" db:"instructions"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type CreatePrescriptionRequest struct {
	Medication   string `json:"medication" binding:"required,max=200"`
	Dosage       string `json:"dosage" binding:"required,max=200"`
	Instructions string `json:"instructions" binding:"max=2000"`
}
