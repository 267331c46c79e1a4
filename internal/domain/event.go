package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusActive   EventStatus = "active"
	EventStatusArchived EventStatus = "archived"
	EventStatusDeleted  EventStatus = "deleted"
)

// Event records one firing of a trigger. Status only moves forward
// (active -> archived -> deleted); TriggeredAt never changes after creation.
//
// UserID is denormalized from the owning trigger so events stay queryable
// by their owner after the trigger is deleted.
type Event struct {
	ID        uuid.UUID
	TriggerID uuid.UUID
	UserID    uuid.UUID

	Status  EventStatus
	Payload map[string]any
	IsTest  bool

	TriggeredAt time.Time
	ArchivedAt  *time.Time
	DeletedAt   *time.Time
}
