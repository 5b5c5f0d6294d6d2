// Package walletlink is a wallet connection and Sign-In-with-Ethereum session
// client. The Manager owns the connection state machine: it drives the
// provider adapter and the handshake client, persists the session record, and
// publishes lifecycle events the rest of the application reacts to.
package walletlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
	"github.com/openex-labs/walletlink/service"
)

// Subscriber receives the machine's snapshot after every committed
// transition. It runs synchronously on the machine's loop; keep it cheap.
type Subscriber func(core.Snapshot)

// Config wires the Manager's collaborators. Provider, Store, Publisher, API
// and Chains are required; the rest default.
type Config struct {
	Provider  ports.Provider
	Store     ports.SessionStore
	Publisher ports.Publisher
	API       ports.AuthAPI
	Chains    *core.ChainRegistry

	// TargetChainID is the network connects steer toward when the wallet
	// reports an unconfigured chain.
	TargetChainID int64

	Retry  service.RetryPolicy
	Logger *zap.Logger
	Clock  func() time.Time
}

type command func(ctx context.Context)

// Manager is the connection state machine. A single loop goroutine, started
// by Run, consumes commands one at a time, so provider interrupts are queued
// behind in-flight transitions instead of interleaving with them.
type Manager struct {
	provider  ports.Provider
	store     ports.SessionStore
	publisher ports.Publisher
	api       ports.AuthAPI
	handshake *service.Handshake
	chains    *core.ChainRegistry
	target    int64
	log       *zap.Logger
	now       func() time.Time

	commands chan command

	// Owned by the loop goroutine.
	status     core.Status
	address    string
	chainID    int64
	walletType core.WalletType
	degraded   bool
	failure    *core.Failure
	session    *core.Session

	mu   sync.RWMutex
	snap core.Snapshot
	subs []Subscriber
}

// New constructs a Manager. Call Run before using it.
func New(cfg Config) (*Manager, error) {
	if cfg.Provider == nil || cfg.Store == nil || cfg.Publisher == nil || cfg.API == nil {
		return nil, errors.New("walletlink: provider, store, publisher and api are required")
	}
	if cfg.Chains == nil {
		cfg.Chains = core.DefaultChainRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = service.DefaultRetryPolicy()
	}
	m := &Manager{
		provider:  cfg.Provider,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		api:       cfg.API,
		chains:    cfg.Chains,
		target:    cfg.TargetChainID,
		log:       cfg.Logger,
		now:       cfg.Clock,
		commands:  make(chan command, 32),
		status:    core.StatusDisconnected,
	}
	m.handshake = service.NewHandshake(cfg.API, cfg.Provider,
		service.WithRetryPolicy(cfg.Retry),
		service.WithLogger(cfg.Logger),
		service.WithClock(cfg.Clock),
	)
	m.snap = m.snapshotLocked()
	return m, nil
}

// Run starts the machine loop and subscribes to provider interrupts. It
// blocks until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	unsub, err := m.provider.Subscribe(ports.Callbacks{
		OnAccountsChanged: func(accounts []string) {
			m.enqueue(func(ctx context.Context) { m.onAccountsChanged(ctx, accounts) })
		},
		OnChainChanged: func(chainID int64) {
			m.enqueue(func(ctx context.Context) { m.onChainChanged(ctx, chainID) })
		},
		OnDisconnect: func() {
			m.enqueue(func(ctx context.Context) { m.onProviderDisconnect(ctx) })
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe to provider: %w", err)
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.commands:
			cmd(ctx)
		}
	}
}

// enqueue posts a fire-and-forget command (provider interrupts).
func (m *Manager) enqueue(cmd command) {
	select {
	case m.commands <- cmd:
	default:
		// The mailbox is saturated; dropping an interrupt is safer than
		// blocking the provider's callback goroutine. The next liveness
		// check reconciles.
		m.log.Warn("command mailbox full, interrupt dropped")
	}
}

// call posts a command and waits for its result.
func (m *Manager) call(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	cmd := func(context.Context) { reply <- fn(ctx) }
	select {
	case m.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect runs the user-initiated connect flow.
func (m *Manager) Connect(ctx context.Context) error {
	return m.call(ctx, m.doConnect)
}

// Disconnect tears the session down. Idempotent.
func (m *Manager) Disconnect(ctx context.Context) error {
	return m.call(ctx, m.doDisconnect)
}

// Restore is the page-load fast path.
func (m *Manager) Restore(ctx context.Context) error {
	return m.call(ctx, m.doRestore)
}

// SwitchChain requests a network switch.
func (m *Manager) SwitchChain(ctx context.Context, chainID int64) error {
	return m.call(ctx, func(ctx context.Context) error { return m.doSwitchChain(ctx, chainID) })
}

// CheckLiveness re-checks the wallet's current account, for focus regain.
func (m *Manager) CheckLiveness(ctx context.Context) error {
	return m.call(ctx, m.doCheckLiveness)
}

// Balance is a best-effort native balance query for the connected account.
func (m *Manager) Balance(ctx context.Context) (decimal.Decimal, error) {
	snap := m.Snapshot()
	if snap.Status != core.StatusConnected && snap.Status != core.StatusSwitchingChain {
		return decimal.Zero, core.ErrSessionInvalid
	}
	return m.provider.Balance(ctx, snap.Address)
}

// Snapshot returns the current machine state. Safe from any goroutine.
func (m *Manager) Snapshot() core.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// OnTransition registers a subscriber invoked after every committed
// transition.
func (m *Manager) OnTransition(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
}

func (m *Manager) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		Status:           m.status,
		Address:          m.address,
		ChainID:          m.chainID,
		WalletType:       m.walletType,
		UnsupportedChain: m.degraded,
		LastFailure:      m.failure,
	}
}

// commit publishes the loop's state to readers and subscribers. State is
// committed before any lifecycle event fires.
func (m *Manager) commit() {
	snap := m.snapshotLocked()
	m.mu.Lock()
	m.snap = snap
	subs := make([]Subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, sub := range subs {
		sub(snap)
	}
}

func (m *Manager) setStatus(status core.Status) {
	m.status = status
	m.commit()
}

func (m *Manager) fail(status core.Status, cause error, message string) *core.Failure {
	m.status = status
	m.failure = core.NewFailure(cause, message)
	if status == core.StatusDisconnected {
		m.address = ""
		m.chainID = 0
		m.degraded = false
		m.session = nil
	}
	m.commit()
	return m.failure
}

func (m *Manager) doConnect(ctx context.Context) error {
	switch m.status {
	case core.StatusConnected, core.StatusSwitchingChain:
		return nil
	case core.StatusConnecting, core.StatusAuthenticating:
		return core.NewFailure(core.ErrSessionInvalid, "connect already in flight")
	}

	m.failure = nil
	m.walletType = m.provider.WalletType()
	m.setStatus(core.StatusConnecting)

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUserRejected):
			return m.fail(core.StatusDisconnected, core.ErrUserRejected, "connection request rejected")
		case errors.Is(err, core.ErrNoAccounts):
			return m.fail(core.StatusDisconnected, core.ErrNoAccounts, "wallet has no accounts")
		default:
			return m.fail(core.StatusDisconnected, core.ErrNoProvider, err.Error())
		}
	}
	address := accounts[0]

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return m.fail(core.StatusDisconnected, core.ErrNoProvider, err.Error())
	}

	m.address = address
	m.chainID = chainID
	m.degraded = false

	if !m.chains.Contains(chainID) && m.target != 0 {
		m.setStatus(core.StatusSwitchingChain)
		if err := m.provider.SwitchChain(ctx, m.target); err != nil {
			// Proceed on the wrong network rather than blocking the
			// connection; the snapshot carries the warning.
			m.log.Warn("chain switch failed, connecting degraded",
				zap.Int64("reported", chainID),
				zap.Int64("target", m.target),
				zap.Error(err))
			m.degraded = true
			m.failure = core.NewFailure(core.ErrUnsupportedChain, m.chains.Label(chainID))
		} else {
			m.chainID = m.target
		}
	} else if !m.chains.Contains(chainID) {
		m.degraded = true
		m.failure = core.NewFailure(core.ErrUnsupportedChain, m.chains.Label(chainID))
	}

	m.setStatus(core.StatusAuthenticating)

	session, err := m.handshake.Authenticate(ctx, address, m.chainID, m.walletType)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUserRejected):
			return m.fail(core.StatusDisconnected, core.ErrUserRejected, "signature request rejected")
		case errors.Is(err, core.ErrSignatureTimeout):
			return m.fail(core.StatusDisconnected, core.ErrSignatureTimeout, "signature request timed out")
		default:
			return m.fail(core.StatusDisconnected, core.ErrAuthenticationFailed, err.Error())
		}
	}

	if err := m.store.Save(ctx, session); err != nil {
		// The backend session is live; losing persistence only costs the
		// fast path on the next load.
		m.log.Warn("session record not persisted", zap.Error(err))
	}
	m.session = session
	m.setStatus(core.StatusConnected)
	m.publishConnected(ctx)
	return nil
}

func (m *Manager) doDisconnect(ctx context.Context) error {
	if m.status == core.StatusDisconnected && m.session == nil {
		return nil
	}

	if err := m.store.Clear(ctx); err != nil {
		m.fail(core.StatusError, core.ErrStoreOperationFailed, "session record could not be cleared")
		return err
	}
	if err := m.api.Disconnect(ctx); err != nil {
		m.log.Warn("backend disconnect failed", zap.Error(err))
	}

	m.session = nil
	m.address = ""
	m.chainID = 0
	m.degraded = false
	m.failure = nil
	m.setStatus(core.StatusDisconnected)
	m.publish(func() error { return m.publisher.Disconnected(ctx) })
	return nil
}

func (m *Manager) doRestore(ctx context.Context) error {
	if m.status != core.StatusDisconnected && m.status != core.StatusError {
		return nil
	}

	session, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("session load failed", zap.Error(err))
		return nil
	}
	if session == nil {
		return nil
	}

	accounts, err := m.provider.Accounts(ctx)
	if err != nil || !containsAddress(accounts, session.WalletAddress) {
		// The wallet no longer reports the stored identity.
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.log.Warn("stale session not cleared", zap.Error(clearErr))
		}
		return nil
	}

	chainID := session.ChainID
	if reported, err := m.provider.ChainID(ctx); err == nil {
		chainID = reported
	}

	m.session = session
	m.address = session.WalletAddress
	m.chainID = chainID
	m.walletType = session.WalletType
	m.degraded = !m.chains.Contains(chainID)
	m.failure = nil
	m.setStatus(core.StatusConnected)
	m.publishConnected(ctx)

	// Backend re-validation happens off the loop so a slow backend cannot
	// hold up the UI; the outcome is applied as a queued command.
	go m.revalidate(context.WithoutCancel(ctx), session.WalletAddress)
	return nil
}

func (m *Manager) revalidate(ctx context.Context, address string) {
	live, err := m.handshake.Revalidate(ctx, address)
	if err != nil {
		// A merely slow or unreachable backend is not a reason to drop a
		// locally live session.
		m.log.Warn("session revalidation failed", zap.Error(err))
		return
	}
	if live {
		return
	}
	m.enqueue(func(ctx context.Context) { m.reauthenticate(ctx, address) })
}

// reauthenticate runs a fresh handshake for the already connected address
// after the backend stopped recognizing the session.
func (m *Manager) reauthenticate(ctx context.Context, address string) {
	if m.status != core.StatusConnected || m.address != address {
		return
	}
	m.setStatus(core.StatusAuthenticating)
	session, err := m.handshake.Authenticate(ctx, address, m.chainID, m.walletType)
	if err != nil {
		m.log.Warn("re-authentication failed", zap.String("address", address), zap.Error(err))
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.fail(core.StatusError, core.ErrStoreOperationFailed, "session record could not be cleared")
			return
		}
		m.fail(core.StatusDisconnected, core.ErrAuthenticationFailed, err.Error())
		m.publish(func() error { return m.publisher.Disconnected(ctx) })
		return
	}
	if err := m.store.Save(ctx, session); err != nil {
		m.log.Warn("session record not persisted", zap.Error(err))
	}
	m.session = session
	m.setStatus(core.StatusConnected)
}

func (m *Manager) doSwitchChain(ctx context.Context, chainID int64) error {
	if m.status != core.StatusConnected && m.status != core.StatusSwitchingChain {
		return core.NewFailure(core.ErrSessionInvalid, "not connected")
	}
	if _, err := m.chains.Lookup(chainID); err != nil {
		return core.NewFailure(core.ErrUnsupportedChain, m.chains.Label(chainID))
	}

	m.setStatus(core.StatusSwitchingChain)
	if err := m.provider.SwitchChain(ctx, chainID); err != nil {
		m.degraded = true
		m.failure = core.NewFailure(core.ErrUnsupportedChain, err.Error())
		m.setStatus(core.StatusConnected)
		return m.failure
	}

	m.applyChain(ctx, chainID)
	m.setStatus(core.StatusConnected)
	m.publish(func() error { return m.publisher.ChainChanged(ctx, chainID) })
	return nil
}

func (m *Manager) doCheckLiveness(ctx context.Context) error {
	if m.status != core.StatusConnected && m.status != core.StatusSwitchingChain {
		return nil
	}
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		// Best effort; a provider hiccup on focus regain is not a
		// disconnect.
		m.log.Warn("liveness check failed", zap.Error(err))
		return nil
	}
	if containsAddress(accounts, m.address) {
		return nil
	}
	m.invalidate(ctx, "")
	return nil
}

// onAccountsChanged handles the provider's account-switch interrupt. A new
// address means the authenticated identity is gone: the record is cleared
// before any new authentication can begin.
func (m *Manager) onAccountsChanged(ctx context.Context, accounts []string) {
	if m.status == core.StatusDisconnected || m.status == core.StatusError {
		return
	}
	if len(accounts) > 0 {
		if addr, err := core.NormalizeAddress(accounts[0]); err == nil && addr == m.address {
			return
		}
	}
	newAccount := ""
	if len(accounts) > 0 {
		newAccount, _ = core.NormalizeAddress(accounts[0])
	}
	m.invalidate(ctx, newAccount)
}

// invalidate discards the current identity: store cleared first, then the
// transition, then the events.
func (m *Manager) invalidate(ctx context.Context, newAccount string) {
	if err := m.store.Clear(ctx); err != nil {
		m.fail(core.StatusError, core.ErrStoreOperationFailed, "session record could not be cleared")
		return
	}
	m.session = nil
	m.address = ""
	m.chainID = 0
	m.degraded = false
	m.failure = nil
	m.setStatus(core.StatusDisconnected)
	if newAccount != "" {
		m.publish(func() error { return m.publisher.AccountChanged(ctx, newAccount) })
	}
	m.publish(func() error { return m.publisher.Disconnected(ctx) })
}

// onChainChanged handles the provider's network-switch interrupt.
func (m *Manager) onChainChanged(ctx context.Context, chainID int64) {
	if m.status != core.StatusConnected && m.status != core.StatusSwitchingChain {
		return
	}
	m.setStatus(core.StatusSwitchingChain)
	m.applyChain(ctx, chainID)
	m.setStatus(core.StatusConnected)
	m.publish(func() error { return m.publisher.ChainChanged(ctx, chainID) })
}

func (m *Manager) applyChain(ctx context.Context, chainID int64) {
	m.chainID = chainID
	m.degraded = !m.chains.Contains(chainID)
	if m.degraded {
		m.failure = core.NewFailure(core.ErrUnsupportedChain, m.chains.Label(chainID))
	} else {
		m.failure = nil
	}
	if m.session != nil {
		m.session.ChainID = chainID
		if err := m.store.Save(ctx, m.session); err != nil {
			m.log.Warn("session record not persisted", zap.Error(err))
		}
	}
}

func (m *Manager) onProviderDisconnect(ctx context.Context) {
	if m.status == core.StatusDisconnected || m.status == core.StatusError {
		return
	}
	m.invalidate(ctx, "")
}

func (m *Manager) publishConnected(ctx context.Context) {
	m.publish(func() error {
		return m.publisher.Connected(ctx, m.address, m.chainID, m.walletType)
	})
}

// publish is fire-and-forget: event delivery never affects the transition.
func (m *Manager) publish(fn func() error) {
	if err := fn(); err != nil {
		m.log.Warn("event publish failed", zap.Error(err))
	}
}

func containsAddress(accounts []string, address string) bool {
	for _, a := range accounts {
		if addr, err := core.NormalizeAddress(a); err == nil && addr == address {
			return true
		}
	}
	return false
}

var _ Client = (*Manager)(nil)
