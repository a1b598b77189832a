package notifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/notifier"
)

func testKey() notifier.Key {
	return notifier.Key{
		UserID:   uuid.New(),
		Label:    notifier.LabelExpiry6h,
		Deadline: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("reserve creates a pending entry once", func(t *testing.T) {
		t.Parallel()

		ledger := notifier.NewMemoryLedger()
		ctx := context.Background()
		key := testKey()

		entry, err := ledger.Reserve(ctx, key, now)
		require.NoError(t, err)
		assert.Equal(t, notifier.StatusPending, entry.Status)
		assert.Zero(t, entry.Attempts)

		again, err := ledger.Reserve(ctx, key, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, now, again.UpdatedAt, "existing entry is returned, not replaced")
	})

	t.Run("mark sent finalizes the entry", func(t *testing.T) {
		t.Parallel()

		ledger := notifier.NewMemoryLedger()
		ctx := context.Background()
		key := testKey()

		_, err := ledger.Reserve(ctx, key, now)
		require.NoError(t, err)
		require.NoError(t, ledger.MarkSent(ctx, key, now))

		entry, err := ledger.Reserve(ctx, key, now)
		require.NoError(t, err)
		assert.Equal(t, notifier.StatusSent, entry.Status)
		assert.Equal(t, 1, entry.Attempts)
	})

	t.Run("mark failed accumulates attempts and keeps the last error", func(t *testing.T) {
		t.Parallel()

		ledger := notifier.NewMemoryLedger()
		ctx := context.Background()
		key := testKey()

		_, err := ledger.Reserve(ctx, key, now)
		require.NoError(t, err)
		require.NoError(t, ledger.MarkFailed(ctx, key, now, errors.New("smtp down")))
		require.NoError(t, ledger.MarkFailed(ctx, key, now, errors.New("smtp still down")))

		entry, err := ledger.Reserve(ctx, key, now)
		require.NoError(t, err)
		assert.Equal(t, notifier.StatusFailed, entry.Status)
		assert.Equal(t, 2, entry.Attempts)
		assert.Equal(t, "smtp still down", entry.LastError)
	})

	t.Run("marking unreserved key fails", func(t *testing.T) {
		t.Parallel()

		ledger := notifier.NewMemoryLedger()
		ctx := context.Background()

		require.ErrorIs(t, ledger.MarkSent(ctx, testKey(), now), notifier.ErrEntryNotFound)
		require.ErrorIs(t, ledger.MarkFailed(ctx, testKey(), now, nil), notifier.ErrEntryNotFound)
	})

	t.Run("distinct deadlines are distinct entries", func(t *testing.T) {
		t.Parallel()

		ledger := notifier.NewMemoryLedger()
		ctx := context.Background()

		key := testKey()
		moved := key
		moved.Deadline = key.Deadline.Add(30 * 24 * time.Hour)

		_, err := ledger.Reserve(ctx, key, now)
		require.NoError(t, err)
		require.NoError(t, ledger.MarkSent(ctx, key, now))

		entry, err := ledger.Reserve(ctx, moved, now)
		require.NoError(t, err)
		assert.Equal(t, notifier.StatusPending, entry.Status)

		assert.Len(t, ledger.Entries(), 2)
	})
}
