package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgLogPrefix = "journal:pg"

// migrationSQL creates the journal schema. Forward-only, idempotent.
const migrationSQL = `
CREATE TABLE IF NOT EXISTS dispatch_failures (
	id           BIGSERIAL PRIMARY KEY,
	message_type TEXT NOT NULL,
	action       TEXT NOT NULL DEFAULT '',
	routing_key  TEXT NOT NULL,
	failure_kind TEXT NOT NULL,
	errors       TEXT[] NOT NULL DEFAULT '{}',
	payload      BYTEA,
	created      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dispatch_failures_type_idx ON dispatch_failures (message_type, created DESC);
`

// PgJournal persists dispatch failures to Postgres.
type PgJournal struct {
	pool *pgxpool.Pool
}

// NewPgJournal creates a PgJournal over the given connection pool.
func NewPgJournal(pool *pgxpool.Pool) *PgJournal {
	return &PgJournal{pool: pool}
}

// Migrate applies the journal schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Applying journal schema", pgLogPrefix))
	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("%s - migration failed: %w", pgLogPrefix, err)
	}
	return nil
}

// SchemaPresent reports whether the journal schema has been applied.
func SchemaPresent(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var reg *string
	if err := pool.QueryRow(ctx, `SELECT to_regclass('dispatch_failures')::text`).Scan(&reg); err != nil {
		return false, fmt.Errorf("%s - schema check failed: %w", pgLogPrefix, err)
	}
	return reg != nil, nil
}

// RecordFailure inserts one failure entry.
func (j *PgJournal) RecordFailure(ctx context.Context, entry Entry) error {
	slog.Debug(fmt.Sprintf("%s - RecordFailure type=%s kind=%s", pgLogPrefix, entry.MessageType, entry.FailureKind))

	_, err := j.pool.Exec(ctx,
		`INSERT INTO dispatch_failures (message_type, action, routing_key, failure_kind, errors, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.MessageType, entry.Action, entry.RoutingKey, entry.FailureKind, entry.Errors, entry.Payload)
	if err != nil {
		return fmt.Errorf("%s - insert failed: %w", pgLogPrefix, err)
	}
	return nil
}

// ListRecent returns the newest entries, newest first.
func (j *PgJournal) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.pool.Query(ctx,
		`SELECT id, message_type, action, routing_key, failure_kind, errors, payload, created
		 FROM dispatch_failures
		 ORDER BY created DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - query failed: %w", pgLogPrefix, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MessageType, &e.Action, &e.RoutingKey, &e.FailureKind, &e.Errors, &e.Payload, &e.Created); err != nil {
			return nil, fmt.Errorf("%s - scan failed: %w", pgLogPrefix, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - rows failed: %w", pgLogPrefix, err)
	}
	return out, nil
}

// Clear truncates the journal. Schema is preserved; only data is removed.
func Clear(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing journal", pgLogPrefix))
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE dispatch_failures RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", pgLogPrefix, err)
	}
	return nil
}
