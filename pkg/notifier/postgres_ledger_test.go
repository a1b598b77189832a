package notifier_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/notifier"
)

func TestPostgresLedger_Reserve(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts and reads back the entry", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		key := testKey()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline, notifier.StatusPending, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(regexp.QuoteMeta("FROM dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline).
			WillReturnRows(pgxmock.NewRows([]string{"status", "attempts", "last_error", "updated_at"}).
				AddRow(notifier.StatusPending, 0, "", now))

		ledger := notifier.NewPostgresLedger(mock)
		entry, err := ledger.Reserve(context.Background(), key, now)
		require.NoError(t, err)

		assert.Equal(t, notifier.StatusPending, entry.Status)
		assert.Zero(t, entry.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict returns the existing entry", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		key := testKey()

		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, threshold, deadline) DO NOTHING")).
			WithArgs(key.UserID, key.Label, key.Deadline, notifier.StatusPending, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline).
			WillReturnRows(pgxmock.NewRows([]string{"status", "attempts", "last_error", "updated_at"}).
				AddRow(notifier.StatusSent, 1, "", now.Add(-time.Minute)))

		ledger := notifier.NewPostgresLedger(mock)
		entry, err := ledger.Reserve(context.Background(), key, now)
		require.NoError(t, err)

		assert.Equal(t, notifier.StatusSent, entry.Status)
		assert.Equal(t, 1, entry.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		key := testKey()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline, notifier.StatusPending, now).
			WillReturnError(errors.New("connection refused"))

		ledger := notifier.NewPostgresLedger(mock)
		_, err = ledger.Reserve(context.Background(), key, now)
		require.ErrorIs(t, err, notifier.ErrLedgerUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLedger_Mark(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("mark sent updates the row", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		key := testKey()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline, notifier.StatusSent, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ledger := notifier.NewPostgresLedger(mock)
		require.NoError(t, ledger.MarkSent(context.Background(), key, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mark failed records the error", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		key := testKey()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline, notifier.StatusFailed, "smtp down", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ledger := notifier.NewPostgresLedger(mock)
		require.NoError(t, ledger.MarkFailed(context.Background(), key, now, errors.New("smtp down")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		key := testKey()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE dispatch_ledger")).
			WithArgs(key.UserID, key.Label, key.Deadline, notifier.StatusSent, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ledger := notifier.NewPostgresLedger(mock)
		require.ErrorIs(t, ledger.MarkSent(context.Background(), key, now), notifier.ErrEntryNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
