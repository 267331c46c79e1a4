package postgres

const querySchema = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS triggers (
    id         UUID PRIMARY KEY,
    user_id    UUID NOT NULL REFERENCES users (id),
    name       TEXT NOT NULL,
    type       TEXT NOT NULL,
    schedule   TEXT,
    api_schema JSONB,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id           UUID PRIMARY KEY,
    trigger_id   UUID NOT NULL,
    user_id      UUID NOT NULL,
    status       TEXT NOT NULL,
    payload      JSONB,
    is_test      BOOLEAN NOT NULL DEFAULT FALSE,
    triggered_at TIMESTAMPTZ NOT NULL,
    archived_at  TIMESTAMPTZ,
    deleted_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_events_status_triggered_at ON events (status, triggered_at);
CREATE INDEX IF NOT EXISTS idx_events_user_triggered_at ON events (user_id, triggered_at DESC);
CREATE INDEX IF NOT EXISTS idx_triggers_user ON triggers (user_id);
`

const queryInsertTrigger = `
INSERT INTO triggers (id, user_id, name, type, schedule, api_schema, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryGetTrigger = `
SELECT id, user_id, name, type, schedule, api_schema, created_at
FROM triggers
WHERE id = $1 AND user_id = $2
`

const queryGetTriggerByID = `
SELECT id, user_id, name, type, schedule, api_schema, created_at
FROM triggers
WHERE id = $1
`

const queryListTriggers = `
SELECT id, user_id, name, type, schedule, api_schema, created_at
FROM triggers
WHERE user_id = $1
ORDER BY created_at
`

const queryListScheduledTriggers = `
SELECT id, user_id, name, type, schedule, api_schema, created_at
FROM triggers
WHERE type = 'scheduled'
ORDER BY created_at
`

const queryDeleteTrigger = `
DELETE FROM triggers
WHERE id = $1 AND user_id = $2
RETURNING id
`

const queryInsertEvent = `
INSERT INTO events (id, trigger_id, user_id, status, payload, is_test, triggered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryListRecentEvents = `
SELECT id, trigger_id, user_id, status, payload, is_test, triggered_at, archived_at, deleted_at
FROM events
WHERE user_id = $1
  AND status = 'active'
  AND triggered_at >= $2
  AND ($3 OR is_test = FALSE)
ORDER BY triggered_at DESC
LIMIT $4 OFFSET $5
`

const queryListArchivedEvents = `
SELECT id, trigger_id, user_id, status, payload, is_test, triggered_at, archived_at, deleted_at
FROM events
WHERE user_id = $1
  AND status = 'archived'
  AND triggered_at > $2
  AND triggered_at <= $3
  AND ($4 OR is_test = FALSE)
ORDER BY triggered_at DESC
LIMIT $5 OFFSET $6
`

const querySweepArchive = `
UPDATE events
SET status = 'archived', archived_at = $1
WHERE status = 'active'
  AND triggered_at <= $2
`

const querySweepDelete = `
UPDATE events
SET status = 'deleted', deleted_at = $1
WHERE status = 'archived'
  AND triggered_at <= $2
`

const queryInsertUser = `
INSERT INTO users (id, username, password_hash, created_at)
VALUES ($1, $2, $3, $4)
`

const queryGetUserByUsername = `
SELECT id, username, password_hash, created_at
FROM users
WHERE username = $1
`

const queryGetUserByID = `
SELECT id, username, password_hash, created_at
FROM users
WHERE id = $1
`
