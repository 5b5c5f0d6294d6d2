package ports

import (
	"context"

	"github.com/openex-labs/walletlink/core"
)

// SessionStore persists at most one session record with TTL semantics.
type SessionStore interface {
	// Save serializes and writes the record, overwriting any prior one.
	Save(ctx context.Context, session *core.Session) error

	// Load reads the stored record. It returns (nil, nil) when the record
	// is absent, expired, or corrupt; in the expired/corrupt cases the
	// stored value is cleared as a side effect. It never fails open into
	// a user-visible error for bad stored bytes.
	Load(ctx context.Context) (*core.Session, error)

	// Clear removes the record unconditionally.
	Clear(ctx context.Context) error
}
