package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the narrow slice of pgxpool.Pool the store needs. Declaring it here
// lets tests substitute pgxmock without a running database.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore implements Store on PostgreSQL. Durations are persisted as
// bigint nanoseconds so metering commits keep full precision.
type PostgresStore struct {
	db DB

	// sweepHorizon bounds how far ahead of a deadline ListDue looks;
	// sweepLookback bounds how long after expiry a record keeps appearing
	// in sweeps (long enough for the post-expiry notice, short enough that
	// old expired records stop being scanned forever).
	sweepHorizon  time.Duration
	sweepLookback time.Duration
}

// PostgresStoreOption configures a PostgresStore.
type PostgresStoreOption func(*PostgresStore)

// WithSweepHorizon overrides how far ahead of expiry ListDue reaches.
func WithSweepHorizon(d time.Duration) PostgresStoreOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.sweepHorizon = d
		}
	}
}

// WithSweepLookback overrides how long expired records stay in sweep scope.
func WithSweepLookback(d time.Duration) PostgresStoreOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.sweepLookback = d
		}
	}
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(db DB, opts ...PostgresStoreOption) *PostgresStore {
	s := &PostgresStore{
		db:            db,
		sweepHorizon:  7 * time.Hour,
		sweepLookback: 48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const subscriptionColumns = `id, user_id, plan_id, model, started_at, expires_at,
	budget_ns, used_ns, meter_opened_at, cancelled_at, last_seen_at, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}

	if sub.History, err = s.loadHistory(ctx, sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *PostgresStore) GetByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}

	if sub.History, err = s.loadHistory(ctx, sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

// Save upserts the record and appends any new renewal history rows in one
// transaction. Existing history rows are never updated or deleted.
func (s *PostgresStore) Save(ctx context.Context, sub *Subscription) error {
	if sub == nil || sub.ID == uuid.Nil {
		return ErrFailedToSave
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			model = EXCLUDED.model,
			started_at = EXCLUDED.started_at,
			expires_at = EXCLUDED.expires_at,
			budget_ns = EXCLUDED.budget_ns,
			used_ns = EXCLUDED.used_ns,
			meter_opened_at = EXCLUDED.meter_opened_at,
			cancelled_at = EXCLUDED.cancelled_at,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Model), sub.StartedAt,
		nullableTime(sub.ExpiresAt), int64(sub.Budget), int64(sub.Used),
		sub.MeterOpenedAt, sub.CancelledAt, sub.LastSeenAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return errors.Join(ErrFailedToSave, err)
	}

	var persisted int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM subscription_renewals WHERE subscription_id = $1`,
		sub.ID).Scan(&persisted); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}

	for i := persisted; i < len(sub.History); i++ {
		rec := sub.History[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO subscription_renewals (
				subscription_id, position, applied_at, amount, currency,
				payment_method, extension_ns, prev_expires_at, new_expires_at,
				prev_budget_ns, new_budget_ns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			sub.ID, i, rec.AppliedAt, rec.Amount.Amount, rec.Amount.Currency,
			rec.PaymentMethod, int64(rec.Extension),
			nullableTime(rec.PrevExpiresAt), nullableTime(rec.NewExpiresAt),
			int64(rec.PrevBudget), int64(rec.NewBudget))
		if err != nil {
			return errors.Join(ErrFailedToSave, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	return nil
}

// ListDue selects non-cancelled records near a known deadline: days-model
// records whose window ends within the horizon (or ended within the
// lookback), and hours-model records with an open metering window or a
// recently materialized exhaustion. Healthy hours records with no open
// window have no deadline and are skipped by the database, not in Go.
func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE cancelled_at IS NULL
		  AND (
			(model = 'days' AND expires_at <= $1 AND expires_at >= $2)
			OR (model = 'hours' AND (
				meter_opened_at IS NOT NULL
				OR (expires_at IS NOT NULL AND used_ns >= budget_ns AND expires_at >= $2)
			))
		  )
		ORDER BY expires_at NULLS LAST`,
		now.Add(s.sweepHorizon), now.Add(-s.sweepLookback))
	if err != nil {
		return nil, errors.Join(ErrFailedToList, err)
	}
	defer rows.Close()

	var due []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrFailedToList, err)
		}
		due = append(due, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToList, err)
	}
	return due, nil
}

func (s *PostgresStore) loadHistory(ctx context.Context, id uuid.UUID) ([]RenewalRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT applied_at, amount, currency, payment_method, extension_ns,
			prev_expires_at, new_expires_at, prev_budget_ns, new_budget_ns
		FROM subscription_renewals
		WHERE subscription_id = $1
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []RenewalRecord
	for rows.Next() {
		var (
			rec                    RenewalRecord
			extension              int64
			prevExpires, nuExpires *time.Time
			prevBudget, nuBudget   int64
		)
		if err := rows.Scan(&rec.AppliedAt, &rec.Amount.Amount, &rec.Amount.Currency,
			&rec.PaymentMethod, &extension, &prevExpires, &nuExpires,
			&prevBudget, &nuBudget); err != nil {
			return nil, err
		}
		rec.Extension = time.Duration(extension)
		rec.PrevBudget = time.Duration(prevBudget)
		rec.NewBudget = time.Duration(nuBudget)
		if prevExpires != nil {
			rec.PrevExpiresAt = *prevExpires
		}
		if nuExpires != nil {
			rec.NewExpiresAt = *nuExpires
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub       Subscription
		model     string
		expiresAt *time.Time
		budget    int64
		used      int64
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &model, &sub.StartedAt,
		&expiresAt, &budget, &used, &sub.MeterOpenedAt, &sub.CancelledAt,
		&sub.LastSeenAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sub.Model = BillingModel(model)
	sub.Budget = time.Duration(budget)
	sub.Used = time.Duration(used)
	if expiresAt != nil {
		sub.ExpiresAt = *expiresAt
	}
	return &sub, nil
}

// nullableTime maps the zero time to NULL so partial records round-trip.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
