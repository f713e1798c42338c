package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate = "create"
	AuditActionRead   = "read"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionLogin  = "login"

	// Entity types
	AuditEntityUser         = "user"
	AuditEntityConsultation = "consultation"
	AuditEntityRelationship = "relationship"
	AuditEntityEmergency    = "emergency"
	AuditEntityHospital     = "hospital"
	AuditEntityMessage      = "message"
	AuditEntityPrescription = "prescription"
)

type AuditLogFilters struct {
	UserID     *uuid.UUID `form:"-"`
	EntityType string     `form:"entity_type"`
	EntityID   *uuid.UUID `form:"-"`
	Action     string     `form:"action"`
	Pagination
}
