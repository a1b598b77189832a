package renewal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/clock"
	"github.com/dmitrymomot/meterkit/pkg/renewal"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

var renewNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func renewalPlans() map[string]subscription.Plan {
	return map[string]subscription.Plan{
		"monthly": {
			ID:          "monthly",
			Name:        "Monthly",
			Model:       subscription.ModelDays,
			MaxSessions: 3,
			Days:        30,
			Price:       subscription.Money{Amount: 999, Currency: "USD"},
		},
		"metered": {
			ID:          "metered",
			Name:        "Metered",
			Model:       subscription.ModelHours,
			MaxSessions: 2,
			Hours:       10 * time.Hour,
			Price:       subscription.Money{Amount: 499, Currency: "USD"},
		},
	}
}

func newProcessor(t *testing.T, subs *subscription.MemoryStore) *renewal.Processor {
	t.Helper()

	p, err := renewal.NewProcessor(context.Background(), subs,
		subscription.NewStaticCatalog(renewalPlans()),
		renewal.WithClock(clock.Fixed(renewNow)),
	)
	require.NoError(t, err)
	return p
}

func payment() renewal.Payment {
	return renewal.Payment{
		Amount: subscription.Money{Amount: 999, Currency: "USD"},
		Method: "card",
	}
}

func TestProcessor_Renew_Days(t *testing.T) {
	t.Parallel()

	t.Run("early renewal keeps remaining days", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		sub := &subscription.Subscription{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			PlanID:    "monthly",
			Model:     subscription.ModelDays,
			ExpiresAt: renewNow.Add(5 * 24 * time.Hour),
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		got, err := p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)

		assert.Equal(t, renewNow.Add(35*24*time.Hour), got.ExpiresAt,
			"extension stacks on the unexpired window")
	})

	t.Run("late renewal extends from now", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		sub := &subscription.Subscription{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			PlanID:    "monthly",
			Model:     subscription.ModelDays,
			ExpiresAt: renewNow.Add(-10 * 24 * time.Hour),
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		got, err := p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)

		assert.Equal(t, renewNow.Add(30*24*time.Hour), got.ExpiresAt,
			"lapsed time is not back-dated")
	})

	t.Run("appends history record", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		prevExpiry := renewNow.Add(5 * 24 * time.Hour)
		sub := &subscription.Subscription{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			PlanID:    "monthly",
			Model:     subscription.ModelDays,
			ExpiresAt: prevExpiry,
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		_, err := p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)
		_, err = p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)

		got, err := subs.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, got.History, 2)

		first := got.History[0]
		assert.Equal(t, renewNow, first.AppliedAt)
		assert.Equal(t, int64(999), first.Amount.Amount)
		assert.Equal(t, "card", first.PaymentMethod)
		assert.Equal(t, prevExpiry, first.PrevExpiresAt)
		assert.Equal(t, prevExpiry.Add(30*24*time.Hour), first.NewExpiresAt)

		second := got.History[1]
		assert.Equal(t, first.NewExpiresAt, second.PrevExpiresAt,
			"history records chain without gaps")
	})
}

func TestProcessor_Renew_Hours(t *testing.T) {
	t.Parallel()

	t.Run("adds hour grant to the budget", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		sub := &subscription.Subscription{
			ID:     uuid.New(),
			UserID: uuid.New(),
			PlanID: "metered",
			Model:  subscription.ModelHours,
			Budget: 10 * time.Hour,
			Used:   7 * time.Hour,
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		got, err := p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)

		assert.Equal(t, 20*time.Hour, got.Budget)
		assert.Equal(t, 7*time.Hour, got.Used, "committed usage is never reset")
		require.Len(t, got.History, 1)
		assert.Equal(t, 10*time.Hour, got.History[0].PrevBudget)
		assert.Equal(t, 20*time.Hour, got.History[0].NewBudget)
		assert.Equal(t, 10*time.Hour, got.History[0].Extension)
	})

	t.Run("clears materialized exhaustion instant", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		sub := &subscription.Subscription{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			PlanID:    "metered",
			Model:     subscription.ModelHours,
			Budget:    10 * time.Hour,
			Used:      10 * time.Hour,
			ExpiresAt: renewNow.Add(-time.Hour),
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		got, err := p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)

		assert.True(t, got.ExpiresAt.IsZero())
		assert.Equal(t, 20*time.Hour, got.Budget)
	})
}

func TestProcessor_Renew(t *testing.T) {
	t.Parallel()

	t.Run("reactivates a cancelled subscription", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		cancelled := renewNow.Add(-time.Hour)
		sub := &subscription.Subscription{
			ID:          uuid.New(),
			UserID:      uuid.New(),
			PlanID:      "monthly",
			Model:       subscription.ModelDays,
			ExpiresAt:   renewNow.Add(10 * 24 * time.Hour),
			CancelledAt: &cancelled,
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		got, err := p.Renew(context.Background(), sub.ID, payment())
		require.NoError(t, err)
		assert.False(t, got.IsCancelled())
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		_, err := p.Renew(context.Background(), uuid.New(), renewal.Payment{
			Amount: subscription.Money{Amount: -1, Currency: "USD"},
		})
		require.ErrorIs(t, err, renewal.ErrInvalidRenewal)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		_, err := p.Renew(context.Background(), uuid.New(), payment())
		require.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("model mismatch leaves the record untouched", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		p := newProcessor(t, subs)

		sub := &subscription.Subscription{
			ID:     uuid.New(),
			UserID: uuid.New(),
			PlanID: "monthly",
			Model:  subscription.ModelHours,
			Budget: 10 * time.Hour,
		}
		require.NoError(t, subs.Save(context.Background(), sub))

		_, err := p.Renew(context.Background(), sub.ID, payment())
		require.ErrorIs(t, err, renewal.ErrModelMismatch)

		got, err := subs.Get(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Hour, got.Budget)
		assert.Empty(t, got.History)
	})
}
