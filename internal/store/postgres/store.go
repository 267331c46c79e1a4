package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/auth"
	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/events"
	"github.com/djlord-it/easy-trigger/internal/lifecycle"
	"github.com/djlord-it/easy-trigger/internal/registry"
)

// Store implements the registry, lifecycle, events and auth store
// interfaces using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a PostgreSQL store. Every operation runs under opTimeout so
// callers (the scheduler's firing callbacks in particular) cannot block
// indefinitely on a wedged connection.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, querySchema)
	return err
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) CreateTrigger(ctx context.Context, trigger domain.Trigger) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var schedule sql.NullString
	if trigger.Type == domain.TriggerTypeScheduled {
		schedule = sql.NullString{String: trigger.Schedule, Valid: true}
	}

	var apiSchema []byte
	if trigger.APISchema != nil {
		var err error
		apiSchema, err = json.Marshal(trigger.APISchema)
		if err != nil {
			return fmt.Errorf("marshal api schema: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, queryInsertTrigger,
		trigger.ID,
		trigger.UserID,
		trigger.Name,
		string(trigger.Type),
		schedule,
		apiSchema,
		trigger.CreatedAt,
	)
	return err
}

func (s *Store) GetTrigger(ctx context.Context, userID, triggerID uuid.UUID) (domain.Trigger, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanTrigger(s.db.QueryRowContext(ctx, queryGetTrigger, triggerID, userID))
}

func (s *Store) GetTriggerByID(ctx context.Context, triggerID uuid.UUID) (domain.Trigger, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanTrigger(s.db.QueryRowContext(ctx, queryGetTriggerByID, triggerID))
}

func (s *Store) ListTriggers(ctx context.Context, userID uuid.UUID) ([]domain.Trigger, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListTriggers, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggers(rows)
}

func (s *Store) ListScheduledTriggers(ctx context.Context) ([]domain.Trigger, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListScheduledTriggers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// DeleteTrigger removes the row. Events keep their trigger_id; they stay
// readable through their denormalized user_id.
func (s *Store) DeleteTrigger(ctx context.Context, userID, triggerID uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var deletedID uuid.UUID
	err := s.db.QueryRowContext(ctx, queryDeleteTrigger, triggerID, userID).Scan(&deletedID)
	if err == sql.ErrNoRows {
		return registry.ErrNotFound
	}
	return err
}

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var payload []byte
	if event.Payload != nil {
		var err error
		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, queryInsertEvent,
		event.ID,
		event.TriggerID,
		event.UserID,
		string(event.Status),
		payload,
		event.IsTest,
		event.TriggeredAt,
	)
	return err
}

func (s *Store) ListRecentEvents(ctx context.Context, userID uuid.UUID, since time.Time, includeTest bool, limit, offset int) ([]domain.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListRecentEvents, userID, since, includeTest, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Store) ListArchivedEvents(ctx context.Context, userID uuid.UUID, from, to time.Time, includeTest bool, limit, offset int) ([]domain.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListArchivedEvents, userID, from, to, includeTest, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// SweepEvents archives then deletes in one transaction, so a failure in
// either step rolls back the whole pass. An event past both cutoffs is
// archived by the first statement and deleted by the second within the
// same transaction.
func (s *Store) SweepEvents(ctx context.Context, now, archiveBefore, deleteBefore time.Time) (int64, int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, querySweepArchive, now, archiveBefore)
	if err != nil {
		return 0, 0, fmt.Errorf("archive step: %w", err)
	}
	archived, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	res, err = tx.ExecContext(ctx, querySweepDelete, now, deleteBefore)
	if err != nil {
		return 0, 0, fmt.Errorf("delete step: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return archived, deleted, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertUser,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return auth.ErrUserExists
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanUser(s.db.QueryRowContext(ctx, queryGetUserByUsername, username))
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanUser(s.db.QueryRowContext(ctx, queryGetUserByID, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (domain.Trigger, error) {
	var trigger domain.Trigger
	var typ string
	var schedule sql.NullString
	var apiSchema []byte

	err := row.Scan(
		&trigger.ID,
		&trigger.UserID,
		&trigger.Name,
		&typ,
		&schedule,
		&apiSchema,
		&trigger.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.Trigger{}, registry.ErrNotFound
	}
	if err != nil {
		return domain.Trigger{}, err
	}

	trigger.Type = domain.TriggerType(typ)
	trigger.Schedule = schedule.String
	if apiSchema != nil {
		if err := json.Unmarshal(apiSchema, &trigger.APISchema); err != nil {
			return domain.Trigger{}, fmt.Errorf("unmarshal api schema: %w", err)
		}
	}
	return trigger, nil
}

func collectTriggers(rows *sql.Rows) ([]domain.Trigger, error) {
	var result []domain.Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var result []domain.Event
	for rows.Next() {
		var event domain.Event
		var status string
		var payload []byte
		var archivedAt, deletedAt sql.NullTime

		err := rows.Scan(
			&event.ID,
			&event.TriggerID,
			&event.UserID,
			&status,
			&payload,
			&event.IsTest,
			&event.TriggeredAt,
			&archivedAt,
			&deletedAt,
		)
		if err != nil {
			return nil, err
		}

		event.Status = domain.EventStatus(status)
		if payload != nil {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		if archivedAt.Valid {
			t := archivedAt.Time
			event.ArchivedAt = &t
		}
		if deletedAt.Valid {
			t := deletedAt.Time
			event.DeletedAt = &t
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// isDuplicateKeyError checks for a PostgreSQL unique violation (23505),
// matching message patterns from lib/pq.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// Compile-time interface assertions
var (
	_ registry.Store  = (*Store)(nil)
	_ lifecycle.Store = (*Store)(nil)
	_ events.Store    = (*Store)(nil)
	_ auth.Store      = (*Store)(nil)
)
