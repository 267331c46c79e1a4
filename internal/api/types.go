package api

// CredentialsRequest is the body for /auth/register and /auth/token.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateScheduledTriggerRequest is the body for POST /triggers/scheduled.
// Schedule is either a positive integer interval in minutes ("30") or a
// five-field cron expression ("0 9 * * 1").
type CreateScheduledTriggerRequest struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
}

// CreateAPITriggerRequest is the body for POST /triggers/api. Schema maps
// field names to one of "str", "int", "float", "bool".
type CreateAPITriggerRequest struct {
	Name   string            `json:"name"`
	Schema map[string]string `json:"schema"`
}

// TestTriggerRequest is the body for POST /triggers/{id}/test. Payload is
// optional for scheduled triggers and validated against the schema for API
// triggers when present.
type TestTriggerRequest struct {
	Payload map[string]any `json:"payload"`
}

type TriggerResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Schedule  string            `json:"schedule,omitempty"`
	Schema    map[string]string `json:"schema,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type ListTriggersResponse struct {
	Triggers []TriggerResponse `json:"triggers"`
}

type TestTriggerResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

type CleanupResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the /health endpoint response. Components is populated
// only in verbose mode.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
