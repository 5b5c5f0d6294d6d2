package walletlink

import (
	"context"

	"github.com/openex-labs/walletlink/core"
)

// Client is the public surface of the wallet connection machine. All methods
// are safe to call from any goroutine; transitions are serialized internally.
type Client interface {
	// Connect runs the full user-initiated connect flow: account request,
	// chain check, SIWE handshake, session persistence.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Idempotent; a second call is a
	// no-op, not an error.
	Disconnect(ctx context.Context) error

	// Restore is the page-load fast path: re-enter the connected state
	// from a live stored session without a handshake, then re-validate
	// with the backend in the background.
	Restore(ctx context.Context) error

	// SwitchChain requests a network switch to a configured chain.
	SwitchChain(ctx context.Context, chainID int64) error

	// CheckLiveness re-checks that the wallet still reports the connected
	// account, for focus/visibility regain.
	CheckLiveness(ctx context.Context) error

	// Snapshot returns the current machine state.
	Snapshot() core.Snapshot
}
