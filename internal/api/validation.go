package api

import (
	"errors"
	"strings"
)

const (
	maxNameLength     = 255
	minPasswordLength = 8
	maxUsernameLength = 64
)

func validateCredentials(req CredentialsRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return errors.New("username is required")
	}
	if len(req.Username) > maxUsernameLength {
		return errors.New("username exceeds 64 characters")
	}
	if len(req.Password) < minPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

func validateTriggerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if len(name) > maxNameLength {
		return errors.New("name exceeds 255 characters")
	}
	return nil
}

func validateScheduledTrigger(req CreateScheduledTriggerRequest) error {
	if err := validateTriggerName(req.Name); err != nil {
		return err
	}
	if strings.TrimSpace(req.Schedule) == "" {
		return errors.New("schedule is required")
	}
	return nil
}

func validateAPITrigger(req CreateAPITriggerRequest) error {
	if err := validateTriggerName(req.Name); err != nil {
		return err
	}
	if len(req.Schema) == 0 {
		return errors.New("schema is required")
	}
	return nil
}
