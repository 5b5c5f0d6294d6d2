package ports

import (
	"context"

	"github.com/openex-labs/walletlink/core"
)

// VerifyRequest carries the signed challenge back to the backend.
type VerifyRequest struct {
	Message       string          `json:"message"`
	Signature     string          `json:"signature"`
	WalletAddress string          `json:"wallet_address"`
	ChainID       int64           `json:"chain_id"`
	WalletType    core.WalletType `json:"wallet_type"`
}

// VerifyResult is the backend's acknowledgment of a verified signature.
type VerifyResult struct {
	SessionID string `json:"session_id"`
	WalletID  string `json:"wallet_id"`
}

// SessionInfo is the backend's view of the ambient session.
type SessionInfo struct {
	Connected bool `json:"connected"`
	Wallet    struct {
		Address        string          `json:"address"`
		WalletType     core.WalletType `json:"wallet_type"`
		PrimaryChainID int64           `json:"primary_chain_id"`
		WalletID       string          `json:"wallet_id"`
	} `json:"wallet"`
}

// AuthAPI is the backend authentication contract.
type AuthAPI interface {
	// Challenge requests a SIWE challenge for the address on the chain.
	Challenge(ctx context.Context, address string, chainID int64) (*core.Challenge, error)

	// Verify submits the signed challenge.
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)

	// SessionInfo introspects the ambient session.
	SessionInfo(ctx context.Context) (*SessionInfo, error)

	// Disconnect tears down the ambient session server-side.
	Disconnect(ctx context.Context) error
}
