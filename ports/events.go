package ports

import (
	"context"

	"github.com/openex-labs/walletlink/core"
)

// Publisher notifies the rest of the dashboard about wallet lifecycle events.
// Delivery is fire-and-forget; listeners may only assume the machine's state
// was committed before the event fired.
type Publisher interface {
	Connected(ctx context.Context, address string, chainID int64, walletType core.WalletType) error
	Disconnected(ctx context.Context) error
	ChainChanged(ctx context.Context, chainID int64) error
	AccountChanged(ctx context.Context, newAccount string) error
}
