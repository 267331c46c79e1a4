package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	// JWT_SECRET is required
	if cfg.JWTSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "JWT_SECRET",
			Message: "required",
		})
	}

	errs = append(errs, validateDuration("SWEEP_INTERVAL", cfg.SweepIntervalStr)...)
	errs = append(errs, validateDuration("ARCHIVE_AFTER", cfg.ArchiveAfterStr)...)
	errs = append(errs, validateDuration("DELETE_AFTER", cfg.DeleteAfterStr)...)
	errs = append(errs, validateDuration("CACHE_TTL", cfg.CacheTTLStr)...)

	// DELETE_AFTER must exceed ARCHIVE_AFTER or events would skip the
	// archived stage entirely.
	if cfg.ArchiveAfter > 0 && cfg.DeleteAfter > 0 && cfg.DeleteAfter <= cfg.ArchiveAfter {
		errs = append(errs, ValidationError{
			Field:   "DELETE_AFTER",
			Message: fmt.Sprintf("must exceed ARCHIVE_AFTER (%s)", cfg.ArchiveAfterStr),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		}}
	}
	if d <= 0 {
		return ValidationErrors{{
			Field:   field,
			Message: "must be positive",
		}}
	}
	return nil
}
