package models

import (
	"time"

	"github.com/google/uuid"
)

type ContactType string

const (
	ContactTypeEscrowOfficer ContactType = "escrow_officer"
	ContactTypeLender        ContactType = "lender"
	ContactTypeInspector     ContactType = "inspector"
)

// Contact is scoped per property and keyed by type; registering a new
// contact of the same type replaces the previous one (last-writer-wins).
type Contact struct {
	ID         uuid.UUID   `json:"id"`
	PropertyID uuid.UUID   `json:"property_id"`
	Type       ContactType `json:"type"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Phone      *string     `json:"phone,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
