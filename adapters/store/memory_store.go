package store

import (
	"context"
	"sync"
	"time"

	"github.com/openex-labs/walletlink/core"
)

// MemoryStore is an in-memory implementation of the SessionStore interface,
// primarily for tests and the demo command.
type MemoryStore struct {
	mu  sync.RWMutex
	raw []byte
	ttl time.Duration
	now func() time.Time
}

// NewMemoryStore creates a new in-memory store with the default session TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ttl: core.SessionTTL,
		now: time.Now,
	}
}

// SetClock overrides the store's clock, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Save serializes and writes the record, overwriting any prior one.
func (s *MemoryStore) Save(ctx context.Context, session *core.Session) error {
	raw, err := encodeSession(session)
	if err != nil {
		return core.ErrStoreOperationFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	return nil
}

// Load reads the stored record, clearing it when corrupt or expired.
func (s *MemoryStore) Load(ctx context.Context) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raw == nil {
		return nil, nil
	}
	session := decodeSession(s.raw, s.now(), s.ttl)
	if session == nil {
		s.raw = nil
		return nil, nil
	}
	return session, nil
}

// Clear removes the record unconditionally.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = nil
	return nil
}

// WriteRaw stores arbitrary bytes under the session key, for corruption
// tests.
func (s *MemoryStore) WriteRaw(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
}

// HasRecord reports whether any bytes are stored, without TTL checks.
func (s *MemoryStore) HasRecord() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw != nil
}
