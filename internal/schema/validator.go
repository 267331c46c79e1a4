// Package schema validates API-trigger payloads against a user-declared
// field-type schema.
package schema

import (
	"fmt"
	"math"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// MissingFieldError reports a schema field absent from the payload.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// TypeMismatchError reports a payload value whose runtime type does not
// match the declared tag.
type TypeMismatchError struct {
	Field    string
	Expected domain.FieldType
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("invalid type for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// InvalidTagError reports a schema declaration using an unknown type tag.
type InvalidTagError struct {
	Field string
	Tag   domain.FieldType
}

func (e InvalidTagError) Error() string {
	return fmt.Sprintf("invalid type %q for field %q: must be one of str, int, float, bool", e.Tag, e.Field)
}

// ValidateSchema checks that every declared tag is one of the four
// primitive tags. Called when an API trigger is created.
func ValidateSchema(s map[string]domain.FieldType) error {
	for field, tag := range s {
		switch tag {
		case domain.FieldTypeString, domain.FieldTypeInt, domain.FieldTypeFloat, domain.FieldTypeBool:
		default:
			return InvalidTagError{Field: field, Tag: tag}
		}
	}
	return nil
}

// Validate checks payload against s. Every schema field must be present and
// carry a value of the declared type. Extra payload fields are ignored.
//
// Payloads come from decoded JSON, so numbers arrive as float64: an int tag
// accepts a float64 with no fractional part, a float tag accepts any float64.
// Bools never satisfy numeric tags and numbers never satisfy bool.
func Validate(payload map[string]any, s map[string]domain.FieldType) error {
	for field, tag := range s {
		value, ok := payload[field]
		if !ok {
			return MissingFieldError{Field: field}
		}
		if !matches(value, tag) {
			return TypeMismatchError{Field: field, Expected: tag, Actual: typeName(value)}
		}
	}
	return nil
}

func matches(value any, tag domain.FieldType) bool {
	switch tag {
	case domain.FieldTypeString:
		_, ok := value.(string)
		return ok
	case domain.FieldTypeBool:
		_, ok := value.(bool)
		return ok
	case domain.FieldTypeFloat:
		switch value.(type) {
		case float64, float32:
			return true
		}
		return false
	case domain.FieldTypeInt:
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == math.Trunc(v)
		}
		return false
	}
	return false
}

// typeName reports a value's type using the schema's own vocabulary.
func typeName(value any) string {
	switch v := value.(type) {
	case string:
		return "str"
	case bool:
		return "bool"
	case int, int32, int64:
		return "int"
	case float32:
		return "float"
	case float64:
		if v == math.Trunc(v) {
			return "int"
		}
		return "float"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}
