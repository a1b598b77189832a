package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis so the concurrency cap holds across
// multiple engine instances. Sessions for a user live in one hash; the hash
// TTL is refreshed on every write, so a user whose sessions all go idle is
// evicted by Redis without any sweep.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. The hash TTL is set
// to twice the inactivity timeout: liveness filtering happens in the meter,
// the TTL only bounds storage of fully abandoned users.
func NewRedisStore(client *redis.Client, inactivityTimeout time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "meterkit:sessions:",
		ttl:    2 * inactivityTimeout,
	}
}

func (r *RedisStore) key(userID uuid.UUID) string {
	return r.prefix + userID.String()
}

func (r *RedisStore) Put(ctx context.Context, session *Session) error {
	if session == nil || session.UserID == uuid.Nil || session.Key == "" {
		return ErrInvalidSession
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key(session.UserID), session.Key, payload)
	pipe.Expire(ctx, r.key(session.UserID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	out := make([]*Session, 0, len(fields))
	for _, raw := range fields {
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			// A corrupt field is dropped rather than poisoning every
			// admission check for the user.
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, userID uuid.UUID, key string) error {
	if err := r.client.HDel(ctx, r.key(userID), key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts abandoned hashes via TTL and the
// meter filters stale sessions by LastSeenAt on read.
func (r *RedisStore) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	return nil
}
