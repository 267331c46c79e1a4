package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/auth"
	"github.com/djlord-it/easy-trigger/internal/cron"
	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/events"
	"github.com/djlord-it/easy-trigger/internal/registry"
	"github.com/djlord-it/easy-trigger/internal/schema"
)

// Pagination defaults and limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// TriggerRegistry is the slice of the registry the handler uses.
type TriggerRegistry interface {
	CreateScheduled(ctx context.Context, userID uuid.UUID, name, schedule string) (domain.Trigger, error)
	CreateAPI(ctx context.Context, userID uuid.UUID, name string, apiSchema map[string]domain.FieldType) (domain.Trigger, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.Trigger, error)
	Delete(ctx context.Context, userID, triggerID uuid.UUID) error
	Test(ctx context.Context, userID, triggerID uuid.UUID, payload map[string]any) (uuid.UUID, error)
}

// EventReader serves event history reads. GetRecent returns the response
// body as raw JSON so cached pages are served byte for byte.
type EventReader interface {
	GetRecent(ctx context.Context, userID uuid.UUID, f events.Filters) ([]byte, error)
	GetArchived(ctx context.Context, userID uuid.UUID, f events.Filters) ([]events.Record, error)
}

// Authenticator issues and verifies access tokens.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (auth.Token, error)
	Login(ctx context.Context, username, password string) (auth.Token, error)
	Authenticate(ctx context.Context, tokenString string) (uuid.UUID, error)
}

// SweepRequester kicks off an out-of-band lifecycle sweep.
type SweepRequester interface {
	TriggerSweep()
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	triggers TriggerRegistry
	events   EventReader
	auth     Authenticator

	sweeper   SweepRequester                  // optional
	db        HealthChecker                   // optional, for verbose /health
	cachePing func(ctx context.Context) error // optional, for verbose /health
}

func NewHandler(triggers TriggerRegistry, events EventReader, auth Authenticator) *Handler {
	return &Handler{triggers: triggers, events: events, auth: auth}
}

// WithSweeper enables POST /events/cleanup.
func (h *Handler) WithSweeper(s SweepRequester) *Handler {
	h.sweeper = s
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithCachePing sets the cache health probe for verbose /health responses.
func (h *Handler) WithCachePing(ping func(ctx context.Context) error) *Handler {
	h.cachePing = ping
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)
		return

	case path == "/auth/register" && r.Method == http.MethodPost:
		h.register(w, r)
		return

	case path == "/auth/token" && r.Method == http.MethodPost:
		h.token(w, r)
		return
	}

	// Everything below requires a valid bearer token.
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch {
	case path == "/triggers/scheduled" && r.Method == http.MethodPost:
		h.createScheduledTrigger(w, r, userID)

	case path == "/triggers/api" && r.Method == http.MethodPost:
		h.createAPITrigger(w, r, userID)

	case path == "/triggers" && r.Method == http.MethodGet:
		h.listTriggers(w, r, userID)

	case strings.HasSuffix(path, "/test") && strings.HasPrefix(path, "/triggers/") && r.Method == http.MethodPost:
		h.testTrigger(w, r, userID)

	case strings.HasPrefix(path, "/triggers/") && r.Method == http.MethodDelete:
		h.deleteTrigger(w, r, userID)

	case path == "/events/recent" && r.Method == http.MethodGet:
		h.recentEvents(w, r, userID)

	case path == "/events/archived" && r.Method == http.MethodGet:
		h.archivedEvents(w, r, userID)

	case path == "/events/cleanup" && r.Method == http.MethodPost:
		h.cleanup(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// authenticate extracts and verifies the bearer token. On failure it writes
// the 401 response itself and returns ok=false.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return uuid.Nil, false
	}

	userID, err := h.auth.Authenticate(r.Context(), strings.TrimPrefix(header, prefix))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateCredentials(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, http.StatusBadRequest, "username already taken")
			return
		}
		log.Printf("api: register error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Printf("api: login error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) createScheduledTrigger(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req CreateScheduledTriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateScheduledTrigger(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trigger, err := h.triggers.CreateScheduled(r.Context(), userID, req.Name, req.Schedule)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("api: create scheduled trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create trigger")
		return
	}

	writeJSON(w, http.StatusCreated, triggerResponse(trigger))
}

func (h *Handler) createAPITrigger(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req CreateAPITriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateAPITrigger(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	apiSchema := make(map[string]domain.FieldType, len(req.Schema))
	for field, tag := range req.Schema {
		apiSchema[field] = domain.FieldType(tag)
	}

	trigger, err := h.triggers.CreateAPI(r.Context(), userID, req.Name, apiSchema)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("api: create api trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create trigger")
		return
	}

	writeJSON(w, http.StatusCreated, triggerResponse(trigger))
}

func (h *Handler) listTriggers(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	triggers, err := h.triggers.List(r.Context(), userID)
	if err != nil {
		log.Printf("api: list triggers error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list triggers")
		return
	}

	resp := ListTriggersResponse{Triggers: make([]TriggerResponse, len(triggers))}
	for i, trigger := range triggers {
		resp.Triggers[i] = triggerResponse(trigger)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteTrigger(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	// Path: /triggers/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "triggers" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	triggerID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trigger id")
		return
	}

	if err := h.triggers.Delete(r.Context(), userID, triggerID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trigger not found")
			return
		}
		log.Printf("api: delete trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete trigger")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) testTrigger(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	// Path: /triggers/{id}/test
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "triggers" || parts[2] != "test" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	triggerID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trigger id")
		return
	}

	var req TestTriggerRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	eventID, err := h.triggers.Test(r.Context(), userID, triggerID, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			writeError(w, http.StatusNotFound, "trigger not found")
		case errors.Is(err, registry.ErrTestRateLimited):
			writeError(w, http.StatusTooManyRequests, "test rate limit exceeded")
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("api: test trigger error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to test trigger")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, TestTriggerResponse{
		EventID: eventID.String(),
		Status:  "fired",
	})
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := h.events.GetRecent(r.Context(), userID, filters)
	if err != nil {
		log.Printf("api: recent events error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("api: write response error: %v", err)
	}
}

func (h *Handler) archivedEvents(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.events.GetArchived(r.Context(), userID, filters)
	if err != nil {
		log.Printf("api: archived events error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if records == nil {
		records = []events.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.sweeper.TriggerSweep()
	writeJSON(w, http.StatusAccepted, CleanupResponse{Status: "scheduled"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || (h.db == nil && h.cachePing == nil) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components["database"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["database"] = "healthy"
		}
	}

	if h.cachePing != nil {
		if err := h.cachePing(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components["cache"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["cache"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// decodeBody decodes the JSON request body into v, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// parseFilters extracts show_test, page and page_size query parameters.
func parseFilters(r *http.Request) (events.Filters, error) {
	f := events.Filters{
		ShowTest: r.URL.Query().Get("show_test") == "true",
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
	}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return events.Filters{}, errors.New("page must be a positive integer")
		}
		f.Page = page
	}

	if sizeStr := r.URL.Query().Get("page_size"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size < 1 {
			return events.Filters{}, errors.New("page_size must be a positive integer")
		}
		if size > MaxPageSize {
			return events.Filters{}, errors.New("page_size exceeds maximum of " + strconv.Itoa(MaxPageSize))
		}
		f.PageSize = size
	}

	return f, nil
}

// isValidationError reports whether err came from schedule parsing or
// payload schema validation, either of which is the caller's fault.
func isValidationError(err error) bool {
	if errors.Is(err, cron.ErrInvalidInterval) ||
		errors.Is(err, cron.ErrMalformedCron) ||
		errors.Is(err, cron.ErrInvalidCronField) {
		return true
	}

	var missing schema.MissingFieldError
	var mismatch schema.TypeMismatchError
	var badTag schema.InvalidTagError
	return errors.As(err, &missing) || errors.As(err, &mismatch) || errors.As(err, &badTag)
}

func triggerResponse(trigger domain.Trigger) TriggerResponse {
	resp := TriggerResponse{
		ID:        trigger.ID.String(),
		Name:      trigger.Name,
		Type:      string(trigger.Type),
		Schedule:  trigger.Schedule,
		CreatedAt: trigger.CreatedAt.UTC().Format(time.RFC3339),
	}
	if trigger.APISchema != nil {
		resp.Schema = make(map[string]string, len(trigger.APISchema))
		for field, tag := range trigger.APISchema {
			resp.Schema[field] = string(tag)
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
