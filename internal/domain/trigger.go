package domain

import (
	"time"

	"github.com/google/uuid"
)

type TriggerType string

const (
	TriggerTypeScheduled TriggerType = "scheduled"
	TriggerTypeAPI       TriggerType = "api"
)

// FieldType is a primitive type tag in an API trigger's payload schema.
type FieldType string

const (
	FieldTypeString FieldType = "str"
	FieldTypeInt    FieldType = "int"
	FieldTypeFloat  FieldType = "float"
	FieldTypeBool   FieldType = "bool"
)

// Trigger is a user-defined rule describing when an event is created.
// Schedule is set iff Type is scheduled; APISchema is set iff Type is api.
type Trigger struct {
	ID     uuid.UUID
	UserID uuid.UUID

	Name string
	Type TriggerType

	Schedule  string
	APISchema map[string]FieldType

	CreatedAt time.Time
}
