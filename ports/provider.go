package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/openex-labs/walletlink/core"
)

// Callbacks receive provider-originated events. They may fire asynchronously
// in any connection state and must be treated as interrupts.
type Callbacks struct {
	OnAccountsChanged func(accounts []string)
	OnChainChanged    func(chainID int64)
	OnDisconnect      func()
}

// Provider is the uniform surface over whatever wallet object the environment
// exposes. Calls that reach into the wallet may trigger a visible prompt;
// none of them retry — retries belong to the orchestrator.
type Provider interface {
	// WalletType classifies the provider's vendor.
	WalletType() core.WalletType

	// Accounts returns the already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)

	// RequestAccounts asks the wallet to authorize accounts, prompting if
	// needed. Returns core.ErrNoAccounts or core.ErrUserRejected on failure.
	RequestAccounts(ctx context.Context) ([]string, error)

	// ChainID returns the provider-reported chain id as an integer.
	ChainID(ctx context.Context) (int64, error)

	// SignPersonal requests a personal-message signature from address.
	// Fails with core.ErrSignatureTimeout after the signing deadline and
	// core.ErrUserRejected when the wallet reports a rejection.
	SignPersonal(ctx context.Context, address string, message []byte) (string, error)

	// SwitchChain asks the wallet to switch networks.
	SwitchChain(ctx context.Context, chainID int64) error

	// AddChain asks the wallet to register a network it does not know.
	AddChain(ctx context.Context, cfg core.ChainConfig) error

	// Balance is a best-effort native balance query, in ether units.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)

	// Subscribe registers provider-level listeners and returns an
	// unsubscribe func.
	Subscribe(cb Callbacks) (func(), error)
}
