package provider

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
)

// LocalProvider is an in-process ports.Provider backed by an ECDSA key. It
// signs EIP-191 personal messages directly, with no wallet prompt, and lets
// callers emit provider events programmatically. Used by the demo command
// and as the provider double in tests.
type LocalProvider struct {
	key        *ecdsa.PrivateKey
	address    string
	walletType core.WalletType

	mu      sync.Mutex
	chainID int64
	balance decimal.Decimal
	subs    map[int]ports.Callbacks
	nextSub int
}

// NewLocalProvider builds a provider for the given key on the given chain.
func NewLocalProvider(key *ecdsa.PrivateKey, chainID int64) *LocalProvider {
	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	return &LocalProvider{
		key:        key,
		address:    address,
		walletType: core.WalletTypeInjected,
		chainID:    chainID,
		subs:       make(map[int]ports.Callbacks),
	}
}

// GenerateLocalProvider creates a provider with a fresh random key.
func GenerateLocalProvider(chainID int64) (*LocalProvider, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewLocalProvider(key, chainID), nil
}

// Address returns the provider's account, lowercase.
func (p *LocalProvider) Address() string {
	return p.address
}

func (p *LocalProvider) WalletType() core.WalletType {
	return p.walletType
}

func (p *LocalProvider) Accounts(ctx context.Context) ([]string, error) {
	return []string{p.address}, nil
}

func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return []string{p.address}, nil
}

func (p *LocalProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

// SignPersonal signs the EIP-191 hash of message with the local key.
func (p *LocalProvider) SignPersonal(ctx context.Context, address string, message []byte) (string, error) {
	if !strings.EqualFold(address, p.address) {
		return "", core.ErrInvalidAddress
	}
	sig, err := crypto.Sign(accounts.TextHash(message), p.key)
	if err != nil {
		return "", err
	}
	// Recovery id in the 27/28 form wallets emit.
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// SwitchChain changes the reported chain and notifies subscribers, the way a
// wallet extension would.
func (p *LocalProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	p.chainID = chainID
	p.mu.Unlock()
	p.EmitChainChanged(chainID)
	return nil
}

func (p *LocalProvider) AddChain(ctx context.Context, cfg core.ChainConfig) error {
	return nil
}

// SetBalance sets the balance reported by Balance.
func (p *LocalProvider) SetBalance(balance decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = balance
}

func (p *LocalProvider) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *LocalProvider) Subscribe(cb ports.Callbacks) (func(), error) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}, nil
}

func (p *LocalProvider) callbacks() []ports.Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := make([]ports.Callbacks, 0, len(p.subs))
	for _, cb := range p.subs {
		subs = append(subs, cb)
	}
	return subs
}

// EmitAccountsChanged delivers an accountsChanged interrupt to subscribers.
func (p *LocalProvider) EmitAccountsChanged(accounts []string) {
	for _, cb := range p.callbacks() {
		if cb.OnAccountsChanged != nil {
			cb.OnAccountsChanged(accounts)
		}
	}
}

// EmitChainChanged delivers a chainChanged interrupt to subscribers.
func (p *LocalProvider) EmitChainChanged(chainID int64) {
	for _, cb := range p.callbacks() {
		if cb.OnChainChanged != nil {
			cb.OnChainChanged(chainID)
		}
	}
}

// EmitDisconnect delivers a disconnect interrupt to subscribers.
func (p *LocalProvider) EmitDisconnect() {
	for _, cb := range p.callbacks() {
		if cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}
	}
}
