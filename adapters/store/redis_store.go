package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openex-labs/walletlink/core"
)

// RedisStore is a Redis implementation of the SessionStore interface. The
// record carries a Redis expiry matching the session TTL, and load still
// re-checks CreatedAt so a record written by an older client cannot outlive
// its age.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a new Redis store on the shared client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    SessionKey,
		ttl:    core.SessionTTL,
		now:    time.Now,
	}
}

// Save serializes and writes the record, overwriting any prior one.
func (s *RedisStore) Save(ctx context.Context, session *core.Session) error {
	raw, err := encodeSession(session)
	if err != nil {
		return core.ErrStoreOperationFailed
	}
	if err := s.client.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", core.ErrStoreOperationFailed)
	}
	return nil
}

// Load reads the stored record, clearing it when corrupt or expired.
func (s *RedisStore) Load(ctx context.Context) (*core.Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", core.ErrStoreOperationFailed)
	}

	session := decodeSession(raw, s.now(), s.ttl)
	if session == nil {
		// Corrupt or expired bytes are treated as absence.
		_ = s.client.Del(ctx, s.key).Err()
		return nil, nil
	}
	return session, nil
}

// Clear removes the record unconditionally.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", core.ErrStoreOperationFailed)
	}
	return nil
}
