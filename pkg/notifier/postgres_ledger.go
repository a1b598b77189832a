package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the narrow slice of pgxpool.Pool the ledger uses. Accepting the
// interface keeps the ledger testable with pgxmock.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLedger implements Ledger on the dispatch_ledger table. The
// composite primary key (user_id, threshold, deadline) is the
// deduplication boundary: reservation is an INSERT that loses quietly on
// conflict, so concurrent sweeps across instances agree on one entry.
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger creates a Postgres-backed dispatch ledger.
func NewPostgresLedger(db DB) *PostgresLedger {
	if db == nil {
		panic("notifier: db is required")
	}
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Reserve(ctx context.Context, key Key, now time.Time) (*Entry, error) {
	const insert = `
		INSERT INTO dispatch_ledger (user_id, threshold, deadline, status, attempts, last_error, updated_at)
		VALUES ($1, $2, $3, $4, 0, '', $5)
		ON CONFLICT (user_id, threshold, deadline) DO NOTHING`

	if _, err := l.db.Exec(ctx, insert, key.UserID, key.Label, key.Deadline, StatusPending, now); err != nil {
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	const query = `
		SELECT status, attempts, last_error, updated_at
		FROM dispatch_ledger
		WHERE user_id = $1 AND threshold = $2 AND deadline = $3`

	entry := &Entry{Key: key}
	err := l.db.QueryRow(ctx, query, key.UserID, key.Label, key.Deadline).
		Scan(&entry.Status, &entry.Attempts, &entry.LastError, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}
	return entry, nil
}

func (l *PostgresLedger) MarkSent(ctx context.Context, key Key, now time.Time) error {
	const update = `
		UPDATE dispatch_ledger
		SET status = $4, attempts = attempts + 1, last_error = '', updated_at = $5
		WHERE user_id = $1 AND threshold = $2 AND deadline = $3`

	tag, err := l.db.Exec(ctx, update, key.UserID, key.Label, key.Deadline, StatusSent, now)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (l *PostgresLedger) MarkFailed(ctx context.Context, key Key, now time.Time, sendErr error) error {
	lastError := ""
	if sendErr != nil {
		lastError = sendErr.Error()
	}

	const update = `
		UPDATE dispatch_ledger
		SET status = $4, attempts = attempts + 1, last_error = $5, updated_at = $6
		WHERE user_id = $1 AND threshold = $2 AND deadline = $3`

	tag, err := l.db.Exec(ctx, update, key.UserID, key.Label, key.Deadline, StatusFailed, lastError, now)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}
