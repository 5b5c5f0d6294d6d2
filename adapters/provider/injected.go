package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
)

// DefaultSignTimeout bounds how long a signature prompt may stay open.
const DefaultSignTimeout = 60 * time.Second

// InjectedProvider implements ports.Provider over a Bridge. It performs no
// retries of its own; every call maps one-to-one onto a wallet request.
type InjectedProvider struct {
	bridge      Bridge
	walletType  core.WalletType
	chains      *core.ChainRegistry
	signTimeout time.Duration

	mu      sync.Mutex
	subs    map[int]ports.Callbacks
	nextSub int
	started bool
}

// NewInjectedProvider wraps a detected bridge. The registry backs the
// add-chain fallback during network switches.
func NewInjectedProvider(bridge Bridge, chains *core.ChainRegistry) *InjectedProvider {
	return &InjectedProvider{
		bridge:      bridge,
		walletType:  Classify(bridge),
		chains:      chains,
		signTimeout: DefaultSignTimeout,
		subs:        make(map[int]ports.Callbacks),
	}
}

// SetSignTimeout overrides the signing deadline, for tests.
func (p *InjectedProvider) SetSignTimeout(d time.Duration) {
	p.signTimeout = d
}

// WalletType returns the vendor classification made at construction.
func (p *InjectedProvider) WalletType() core.WalletType {
	return p.walletType
}

// Accounts returns the authorized accounts without prompting.
func (p *InjectedProvider) Accounts(ctx context.Context) ([]string, error) {
	return p.requestAccounts(ctx, "eth_accounts")
}

// RequestAccounts prompts the wallet to authorize accounts.
func (p *InjectedProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	accounts, err := p.requestAccounts(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, core.ErrNoAccounts
	}
	return accounts, nil
}

func (p *InjectedProvider) requestAccounts(ctx context.Context, method string) ([]string, error) {
	raw, err := p.bridge.Request(ctx, method, nil)
	if err != nil {
		return nil, mapRPCError(err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	normalized := make([]string, 0, len(accounts))
	for _, a := range accounts {
		addr, err := core.NormalizeAddress(a)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, addr)
	}
	return normalized, nil
}

// ChainID returns the wallet's current chain id. Providers report hex
// strings; the conversion is exact.
func (p *InjectedProvider) ChainID(ctx context.Context) (int64, error) {
	raw, err := p.bridge.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, mapRPCError(err)
	}
	var hexID string
	if err := json.Unmarshal(raw, &hexID); err != nil {
		return 0, fmt.Errorf("decode eth_chainId result: %w", err)
	}
	id, err := hexutil.DecodeUint64(hexID)
	if err != nil {
		return 0, fmt.Errorf("malformed chain id %q: %w", hexID, err)
	}
	return int64(id), nil
}

// SignPersonal requests a personal-message signature, racing the wallet
// prompt against the signing deadline.
func (p *InjectedProvider) SignPersonal(ctx context.Context, address string, message []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.signTimeout)
	defer cancel()

	type signResult struct {
		sig string
		err error
	}
	done := make(chan signResult, 1)

	go func() {
		raw, err := p.bridge.Request(ctx, "personal_sign", []any{hexutil.Encode(message), address})
		if err != nil {
			done <- signResult{err: mapRPCError(err)}
			return
		}
		var sig string
		if err := json.Unmarshal(raw, &sig); err != nil {
			done <- signResult{err: fmt.Errorf("decode personal_sign result: %w", err)}
			return
		}
		done <- signResult{sig: sig}
	}()

	select {
	case res := <-done:
		return res.sig, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", core.ErrSignatureTimeout
		}
		return "", ctx.Err()
	}
}

// SwitchChain asks the wallet to change networks. An unrecognized chain
// falls back to a single add-chain request with the matching configuration,
// then one switch re-attempt.
func (p *InjectedProvider) SwitchChain(ctx context.Context, chainID int64) error {
	err := p.requestSwitch(ctx, chainID)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != codeUnrecognizedChain {
		return err
	}

	cfg, lookupErr := p.chains.Lookup(chainID)
	if lookupErr != nil {
		return lookupErr
	}
	if addErr := p.AddChain(ctx, cfg); addErr != nil {
		return addErr
	}
	return p.requestSwitch(ctx, chainID)
}

func (p *InjectedProvider) requestSwitch(ctx context.Context, chainID int64) error {
	params := []any{map[string]string{"chainId": hexutil.EncodeUint64(uint64(chainID))}}
	if _, err := p.bridge.Request(ctx, "wallet_switchEthereumChain", params); err != nil {
		return mapRPCError(err)
	}
	return nil
}

// AddChain registers a network with the wallet.
func (p *InjectedProvider) AddChain(ctx context.Context, cfg core.ChainConfig) error {
	params := []any{map[string]any{
		"chainId":   cfg.HexChainID(),
		"chainName": cfg.Name,
		"rpcUrls":   []string{cfg.RPCURL},
		"blockExplorerUrls": []string{
			cfg.BlockExplorerURL,
		},
		"nativeCurrency": map[string]any{
			"name":     cfg.NativeCurrencySymbol,
			"symbol":   cfg.NativeCurrencySymbol,
			"decimals": 18,
		},
	}}
	if _, err := p.bridge.Request(ctx, "wallet_addEthereumChain", params); err != nil {
		return mapRPCError(err)
	}
	return nil
}

// Balance queries the native balance in ether units, best effort.
func (p *InjectedProvider) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	raw, err := p.bridge.Request(ctx, "eth_getBalance", []any{address, "latest"})
	if err != nil {
		return decimal.Zero, mapRPCError(err)
	}
	var hexWei string
	if err := json.Unmarshal(raw, &hexWei); err != nil {
		return decimal.Zero, fmt.Errorf("decode eth_getBalance result: %w", err)
	}
	wei, err := hexutil.DecodeBig(hexWei)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed balance %q: %w", hexWei, err)
	}
	return weiToEther(wei), nil
}

func weiToEther(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}

// Subscribe fans the bridge's notifications into the given callbacks and
// returns an unsubscribe func. Callbacks fire from the dispatch goroutine
// and can arrive in any state.
func (p *InjectedProvider) Subscribe(cb ports.Callbacks) (func(), error) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	if !p.started {
		p.started = true
		go p.dispatch()
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}, nil
}

func (p *InjectedProvider) dispatch() {
	for note := range p.bridge.Events() {
		p.mu.Lock()
		subs := make([]ports.Callbacks, 0, len(p.subs))
		for _, cb := range p.subs {
			subs = append(subs, cb)
		}
		p.mu.Unlock()

		for _, cb := range subs {
			deliver(cb, note)
		}
	}
}

func deliver(cb ports.Callbacks, note Notification) {
	switch note.Event {
	case EventAccountsChanged:
		if cb.OnAccountsChanged == nil {
			return
		}
		var accounts []string
		if err := json.Unmarshal(note.Params, &accounts); err != nil {
			return
		}
		cb.OnAccountsChanged(accounts)
	case EventChainChanged:
		if cb.OnChainChanged == nil {
			return
		}
		var hexID string
		if err := json.Unmarshal(note.Params, &hexID); err != nil {
			return
		}
		id, err := hexutil.DecodeUint64(hexID)
		if err != nil {
			return
		}
		cb.OnChainChanged(int64(id))
	case EventDisconnect:
		if cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}
	}
}

// mapRPCError translates wallet error codes into the typed taxonomy.
func mapRPCError(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeUserRejected {
		return fmt.Errorf("%s: %w", rpcErr.Message, core.ErrUserRejected)
	}
	return err
}
