package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConsultationID uuid.UUID `json:"consultation_id" db:"consultation_id"`
	SenderID       uuid.UUID `json:"sender_id" db:"sender_id"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=5000"`
}
