package walletlink_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openex-labs/walletlink"
	"github.com/openex-labs/walletlink/adapters/provider"
	"github.com/openex-labs/walletlink/adapters/store"
	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
	"github.com/openex-labs/walletlink/service"
)

// stubAPI scripts the backend with call counters.
type stubAPI struct {
	mu               sync.Mutex
	challengeCalls   int
	verifyCalls      int
	sessionInfoCalls int
	disconnectCalls  int
	sessionConnected bool
	sessionAddress   string
}

func (a *stubAPI) Challenge(ctx context.Context, address string, chainID int64) (*core.Challenge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.challengeCalls++
	return &core.Challenge{Message: "sign in as " + address, Nonce: "nonce-1"}, nil
}

func (a *stubAPI) Verify(ctx context.Context, req ports.VerifyRequest) (*ports.VerifyResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyCalls++
	a.sessionConnected = true
	a.sessionAddress = req.WalletAddress
	return &ports.VerifyResult{SessionID: "sess-1", WalletID: "wallet-1"}, nil
}

func (a *stubAPI) SessionInfo(ctx context.Context) (*ports.SessionInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionInfoCalls++
	info := &ports.SessionInfo{Connected: a.sessionConnected}
	info.Wallet.Address = a.sessionAddress
	return info, nil
}

func (a *stubAPI) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectCalls++
	a.sessionConnected = false
	return nil
}

func (a *stubAPI) counts() (challenge, verify int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.challengeCalls, a.verifyCalls
}

// recordingPublisher counts lifecycle events.
type recordingPublisher struct {
	mu             sync.Mutex
	connected      []string
	disconnected   int
	chainChanged   []int64
	accountChanged []string
}

func (p *recordingPublisher) Connected(ctx context.Context, address string, chainID int64, walletType core.WalletType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = append(p.connected, address)
	return nil
}

func (p *recordingPublisher) Disconnected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected++
	return nil
}

func (p *recordingPublisher) ChainChanged(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainChanged = append(p.chainChanged, chainID)
	return nil
}

func (p *recordingPublisher) AccountChanged(ctx context.Context, newAccount string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountChanged = append(p.accountChanged, newAccount)
	return nil
}

func (p *recordingPublisher) connectedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connected)
}

func (p *recordingPublisher) disconnectedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

// countingStore wraps the memory store to observe clears.
type countingStore struct {
	*store.MemoryStore
	mu         sync.Mutex
	clearCalls int
}

func (s *countingStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.clearCalls++
	s.mu.Unlock()
	return s.MemoryStore.Clear(ctx)
}

func (s *countingStore) clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearCalls
}

// testProvider wraps the local key provider with scriptable failures.
type testProvider struct {
	*provider.LocalProvider
	mu               sync.Mutex
	accountsOverride []string
	signErr          error
	switchErr        error
}

func (p *testProvider) setAccounts(accounts []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountsOverride = accounts
}

func (p *testProvider) Accounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	override := p.accountsOverride
	p.mu.Unlock()
	if override != nil {
		return override, nil
	}
	return p.LocalProvider.Accounts(ctx)
}

func (p *testProvider) SignPersonal(ctx context.Context, address string, message []byte) (string, error) {
	p.mu.Lock()
	err := p.signErr
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	return p.LocalProvider.SignPersonal(ctx, address, message)
}

func (p *testProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	err := p.switchErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.LocalProvider.SwitchChain(ctx, chainID)
}

type fixture struct {
	manager *walletlink.Manager
	wallet  *testProvider
	store   *countingStore
	pub     *recordingPublisher
	api     *stubAPI
}

func newFixture(t *testing.T, walletChain int64) *fixture {
	t.Helper()

	local, err := provider.GenerateLocalProvider(walletChain)
	require.NoError(t, err)
	wallet := &testProvider{LocalProvider: local}
	sessions := &countingStore{MemoryStore: store.NewMemoryStore()}
	pub := &recordingPublisher{}
	api := &stubAPI{}

	manager, err := walletlink.New(walletlink.Config{
		Provider:      wallet,
		Store:         sessions,
		Publisher:     pub,
		API:           api,
		Chains:        core.DefaultChainRegistry(),
		TargetChainID: 8453,
		Retry:         service.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Classify: service.IsTransient},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{manager: manager, wallet: wallet, store: sessions, pub: pub, api: api}
}

// drain waits for every queued interrupt to be processed.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.CheckLiveness(context.Background()))
}

func seedSession(t *testing.T, f *fixture, address string, age time.Duration) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), &core.Session{
		WalletAddress: address,
		ChainID:       8453,
		WalletType:    core.WalletTypeInjected,
		SessionID:     "sess-0",
		WalletID:      "wallet-0",
		CreatedAt:     time.Now().Add(-age),
	}))
}

func TestConnectFreshSession(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	var statuses []core.Status
	var mu sync.Mutex
	f.manager.OnTransition(func(snap core.Snapshot) {
		mu.Lock()
		statuses = append(statuses, snap.Status)
		mu.Unlock()
	})

	require.NoError(t, f.manager.Connect(ctx))

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, f.wallet.Address(), snap.Address)
	assert.Equal(t, int64(8453), snap.ChainID)
	assert.False(t, snap.UnsupportedChain)

	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, f.wallet.Address(), persisted.WalletAddress)
	assert.Equal(t, int64(8453), persisted.ChainID)

	assert.Equal(t, 1, f.pub.connectedCount(), "wallet:connected fires exactly once")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, statuses, core.StatusConnecting)
	assert.Contains(t, statuses, core.StatusAuthenticating)
}

func TestConnectIdempotentWhileConnected(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))
	require.NoError(t, f.manager.Connect(ctx))

	challenge, verify := f.api.counts()
	assert.Equal(t, 1, challenge)
	assert.Equal(t, 1, verify)
	assert.Equal(t, 1, f.pub.connectedCount())
}

func TestConnectUserRejected(t *testing.T) {
	f := newFixture(t, 8453)
	f.wallet.signErr = core.ErrUserRejected

	err := f.manager.Connect(context.Background())
	require.ErrorIs(t, err, core.ErrUserRejected)

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusDisconnected, snap.Status)
	require.NotNil(t, snap.LastFailure)
	assert.ErrorIs(t, snap.LastFailure.Cause, core.ErrUserRejected)
	assert.False(t, f.store.HasRecord())
	assert.Zero(t, f.pub.connectedCount())
}

func TestConnectSwitchesUnsupportedChain(t *testing.T) {
	// Wallet starts on mainnet, which the registry does not carry.
	f := newFixture(t, 1)
	ctx := context.Background()

	var sawSwitching bool
	var mu sync.Mutex
	f.manager.OnTransition(func(snap core.Snapshot) {
		if snap.Status == core.StatusSwitchingChain {
			mu.Lock()
			sawSwitching = true
			mu.Unlock()
		}
	})

	require.NoError(t, f.manager.Connect(ctx))
	f.drain(t)

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, int64(8453), snap.ChainID)
	assert.False(t, snap.UnsupportedChain)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawSwitching, "connect traversed SwitchingChain")
}

func TestConnectDegradedWhenSwitchFails(t *testing.T) {
	f := newFixture(t, 1)
	f.wallet.switchErr = core.ErrUserRejected

	require.NoError(t, f.manager.Connect(context.Background()))

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, int64(1), snap.ChainID)
	assert.True(t, snap.UnsupportedChain)
	require.NotNil(t, snap.LastFailure)
	assert.ErrorIs(t, snap.LastFailure.Cause, core.ErrUnsupportedChain)
}

func TestDisconnectIdempotent(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))

	require.NoError(t, f.manager.Disconnect(ctx))
	assert.Equal(t, core.StatusDisconnected, f.manager.Snapshot().Status)
	assert.Equal(t, 1, f.store.clears())
	assert.Equal(t, 1, f.pub.disconnectedCount())

	// Second disconnect is a no-op, not an error.
	require.NoError(t, f.manager.Disconnect(ctx))
	assert.Equal(t, core.StatusDisconnected, f.manager.Snapshot().Status)
	assert.Equal(t, 1, f.store.clears())
	assert.Equal(t, 1, f.pub.disconnectedCount())
}

func TestRestoreFastPath(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	seedSession(t, f, f.wallet.Address(), time.Hour)
	f.api.sessionConnected = true
	f.api.sessionAddress = f.wallet.Address()

	require.NoError(t, f.manager.Restore(ctx))

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, f.wallet.Address(), snap.Address)

	challenge, verify := f.api.counts()
	assert.Zero(t, challenge, "fast path makes no challenge call")
	assert.Zero(t, verify, "fast path makes no verify call")
	assert.Equal(t, 1, f.pub.connectedCount())

	// The async backend check confirms the session and changes nothing.
	require.Eventually(t, func() bool {
		f.api.mu.Lock()
		defer f.api.mu.Unlock()
		return f.api.sessionInfoCalls > 0
	}, time.Second, 5*time.Millisecond)
	f.drain(t)
	challenge, _ = f.api.counts()
	assert.Zero(t, challenge)
	assert.Equal(t, core.StatusConnected, f.manager.Snapshot().Status)
}

func TestRestoreExpiredRecord(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	seedSession(t, f, f.wallet.Address(), 25*time.Hour)

	require.NoError(t, f.manager.Restore(ctx))
	assert.Equal(t, core.StatusDisconnected, f.manager.Snapshot().Status)
	assert.False(t, f.store.HasRecord())
	assert.Zero(t, f.pub.connectedCount())
}

func TestRestoreAccountMismatch(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	seedSession(t, f, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", time.Hour)

	require.NoError(t, f.manager.Restore(ctx))
	assert.Equal(t, core.StatusDisconnected, f.manager.Snapshot().Status)
	assert.False(t, f.store.HasRecord(), "stale record for the old identity is cleared")
}

func TestRestoreRevalidationTriggersReauth(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	seedSession(t, f, f.wallet.Address(), time.Hour)
	// Backend no longer recognizes the session.
	f.api.sessionConnected = false

	require.NoError(t, f.manager.Restore(ctx))
	assert.Equal(t, core.StatusConnected, f.manager.Snapshot().Status, "no flicker while the check runs")

	// The failed check re-triggers a full handshake, not a disconnect.
	require.Eventually(t, func() bool {
		challenge, verify := f.api.counts()
		return challenge == 1 && verify == 1
	}, time.Second, 5*time.Millisecond)
	f.drain(t)
	assert.Equal(t, core.StatusConnected, f.manager.Snapshot().Status)
}

func TestAccountChangeInvalidation(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))
	require.True(t, f.store.HasRecord())

	f.wallet.EmitAccountsChanged([]string{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"})
	f.drain(t)

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusDisconnected, snap.Status)
	assert.Empty(t, snap.Address)
	assert.False(t, f.store.HasRecord(), "record cleared before any new authentication")
	assert.Equal(t, []string{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}, f.pub.accountChanged)
	assert.Equal(t, 1, f.pub.disconnectedCount())
}

func TestSameAccountInterruptIgnored(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))
	f.wallet.EmitAccountsChanged([]string{f.wallet.Address()})
	f.drain(t)

	assert.Equal(t, core.StatusConnected, f.manager.Snapshot().Status)
	assert.True(t, f.store.HasRecord())
}

func TestProviderDisconnectInterrupt(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))
	f.wallet.EmitDisconnect()
	f.drain(t)

	assert.Equal(t, core.StatusDisconnected, f.manager.Snapshot().Status)
	assert.False(t, f.store.HasRecord())
}

func TestSwitchChainRequested(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))
	require.NoError(t, f.manager.SwitchChain(ctx, 137))
	f.drain(t)

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, int64(137), snap.ChainID)
	assert.False(t, snap.UnsupportedChain)

	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, int64(137), persisted.ChainID)
}

func TestSwitchChainUnknownRejected(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))

	err := f.manager.SwitchChain(ctx, 42)
	require.ErrorIs(t, err, core.ErrUnsupportedChain)
	assert.Equal(t, int64(8453), f.manager.Snapshot().ChainID)
}

func TestChainChangedInterruptDegrades(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))
	// The wallet switches itself to an unconfigured network.
	f.wallet.EmitChainChanged(1)
	f.drain(t)

	snap := f.manager.Snapshot()
	assert.Equal(t, core.StatusConnected, snap.Status)
	assert.Equal(t, int64(1), snap.ChainID)
	assert.True(t, snap.UnsupportedChain)
	assert.Equal(t, []int64{1}, f.pub.chainChanged)
}

func TestCheckLivenessMismatchDisconnects(t *testing.T) {
	f := newFixture(t, 8453)
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx))

	// On focus regain, the wallet now reports a different account.
	f.wallet.setAccounts([]string{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"})
	require.NoError(t, f.manager.CheckLiveness(ctx))

	assert.Equal(t, core.StatusDisconnected, f.manager.Snapshot().Status)
	assert.False(t, f.store.HasRecord())
}
