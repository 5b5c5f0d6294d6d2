// Package provider adapts an injected wallet object into the uniform
// ports.Provider surface. Detection and classification follow the injected
// wallet convention: vendor booleans on the provider object, request/response
// RPC, and accountsChanged/chainChanged/disconnect notifications.
//
// WalletConnect is recognized as a vendor tag only; no remote-signing
// transport is implemented behind it.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openex-labs/walletlink/core"
)

// Wallet RPC error codes from the injected provider convention.
const (
	codeUserRejected      = 4001
	codeUnrecognizedChain = 4902
)

// Flags are the vendor-identifying booleans an injected object exposes.
type Flags struct {
	IsMetaMask       bool
	IsCoinbaseWallet bool
	IsWalletConnect  bool
}

// Notification is a provider-level event as delivered by the bridge.
type Notification struct {
	Event  string
	Params json.RawMessage
}

// Provider event names.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Bridge is the raw injected wallet object: a request pipe plus an event
// stream. Implementations include extension transports and test doubles.
type Bridge interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	Flags() Flags
	Events() <-chan Notification
	Close() error
}

// RPCError is a structured error reported by the wallet.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// Detect returns the first usable bridge, or false when none is injected.
// It has no side effects and never prompts.
func Detect(bridges ...Bridge) (Bridge, bool) {
	for _, b := range bridges {
		if b != nil {
			return b, true
		}
	}
	return nil, false
}

// Classify maps vendor flags to a wallet type. Any injected object without a
// recognized flag is WalletTypeInjected; no bridge at all is WalletTypeUnknown.
func Classify(b Bridge) core.WalletType {
	if b == nil {
		return core.WalletTypeUnknown
	}
	flags := b.Flags()
	switch {
	case flags.IsMetaMask:
		return core.WalletTypeMetaMask
	case flags.IsCoinbaseWallet:
		return core.WalletTypeCoinbaseWallet
	case flags.IsWalletConnect:
		return core.WalletTypeWalletConnect
	default:
		return core.WalletTypeInjected
	}
}
