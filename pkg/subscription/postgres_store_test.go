package subscription_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

func subscriptionRows(sub *subscription.Subscription) *pgxmock.Rows {
	var expiresAt *time.Time
	if !sub.ExpiresAt.IsZero() {
		expiresAt = &sub.ExpiresAt
	}
	return pgxmock.NewRows([]string{
		"id", "user_id", "plan_id", "model", "started_at", "expires_at",
		"budget_ns", "used_ns", "meter_opened_at", "cancelled_at",
		"last_seen_at", "created_at", "updated_at",
	}).AddRow(
		sub.ID, sub.UserID, sub.PlanID, string(sub.Model), sub.StartedAt,
		expiresAt, int64(sub.Budget), int64(sub.Used), sub.MeterOpenedAt,
		sub.CancelledAt, sub.LastSeenAt, sub.CreatedAt, sub.UpdatedAt,
	)
}

func emptyHistoryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"applied_at", "amount", "currency", "payment_method", "extension_ns",
		"prev_expires_at", "new_expires_at", "prev_budget_ns", "new_budget_ns",
	})
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns record with history", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		sub := daysSub(testNow.Add(24 * time.Hour))
		sub.CreatedAt = testNow.Add(-30 * 24 * time.Hour)
		sub.UpdatedAt = testNow

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, plan_id, model")).
			WithArgs(sub.ID).
			WillReturnRows(subscriptionRows(sub))
		mock.ExpectQuery(regexp.QuoteMeta("FROM subscription_renewals")).
			WithArgs(sub.ID).
			WillReturnRows(emptyHistoryRows().AddRow(
				testNow.Add(-24*time.Hour), int64(1500), "USD", "card",
				int64(0), nil, &sub.ExpiresAt, int64(0), int64(0),
			))

		store := subscription.NewPostgresStore(mock)
		got, err := store.Get(ctx, sub.ID)
		require.NoError(t, err)

		assert.Equal(t, sub.ID, got.ID)
		assert.Equal(t, subscription.ModelDays, got.Model)
		require.Len(t, got.History, 1)
		assert.Equal(t, "card", got.History[0].PaymentMethod)
		assert.Equal(t, sub.ExpiresAt, got.History[0].NewExpiresAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, plan_id, model")).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		store := subscription.NewPostgresStore(mock)
		_, err = store.Get(ctx, id)
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("upserts record and appends new history in one tx", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		sub := hoursSub(10*time.Hour, time.Hour, nil)
		sub.CreatedAt = testNow.Add(-24 * time.Hour)
		sub.UpdatedAt = testNow
		sub.History = []subscription.RenewalRecord{{
			AppliedAt:     testNow,
			Amount:        subscription.Money{Amount: 2500, Currency: "USD"},
			PaymentMethod: "card",
			Extension:     10 * time.Hour,
			NewBudget:     10 * time.Hour,
		}}

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
			WithArgs(sub.ID, sub.UserID, sub.PlanID, string(sub.Model), sub.StartedAt,
				pgxmock.AnyArg(), int64(sub.Budget), int64(sub.Used),
				sub.MeterOpenedAt, sub.CancelledAt, sub.LastSeenAt, sub.CreatedAt, sub.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM subscription_renewals")).
			WithArgs(sub.ID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscription_renewals")).
			WithArgs(sub.ID, 0, sub.History[0].AppliedAt, int64(2500), "USD",
				"card", int64(10*time.Hour), pgxmock.AnyArg(), pgxmock.AnyArg(),
				int64(0), int64(10*time.Hour)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		store := subscription.NewPostgresStore(mock)
		require.NoError(t, store.Save(ctx, sub))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already persisted history is not re-inserted", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		sub := hoursSub(10*time.Hour, time.Hour, nil)
		sub.History = []subscription.RenewalRecord{{AppliedAt: testNow, PaymentMethod: "card"}}

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM subscription_renewals")).
			WithArgs(sub.ID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectCommit()

		store := subscription.NewPostgresStore(mock)
		require.NoError(t, store.Save(ctx, sub))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil record rejected without touching the database", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := subscription.NewPostgresStore(mock)
		assert.ErrorIs(t, store.Save(ctx, nil), subscription.ErrFailedToSave)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sub := daysSub(testNow.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE cancelled_at IS NULL")).
		WithArgs(testNow.Add(7*time.Hour), testNow.Add(-48*time.Hour)).
		WillReturnRows(subscriptionRows(sub))

	store := subscription.NewPostgresStore(mock)
	due, err := store.ListDue(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, sub.ID, due[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
