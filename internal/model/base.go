package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for tombstoned entities
type Base struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDeleted reports whether the tombstone is set.
func (b Base) IsDeleted() bool {
	return b.DeletedAt != nil
}

// Pagination represents common pagination parameters
type Pagination struct {
	Limit  int `json:"limit" form:"limit"`
	Offset int `json:"offset" form:"offset"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps the page window to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
