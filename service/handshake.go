// Package service implements the two-leg SIWE handshake: request a challenge,
// sign it with the wallet, submit the signature. The backend legs retry on
// transient contention; the signing step is a human interaction and never
// retries.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
)

// Handshake executes the authentication protocol and turns it into a session
// record.
type Handshake struct {
	api      ports.AuthAPI
	provider ports.Provider
	policy   RetryPolicy
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Handshake.
type Option func(*Handshake)

// WithRetryPolicy overrides the backend retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(h *Handshake) { h.policy = policy }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Handshake) { h.log = log }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handshake) { h.now = now }
}

// NewHandshake creates a handshake client over the backend API and provider.
func NewHandshake(api ports.AuthAPI, provider ports.Provider, opts ...Option) *Handshake {
	h := &Handshake{
		api:      api,
		provider: provider,
		policy:   DefaultRetryPolicy(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Authenticate runs one full handshake for the address. On success the
// returned session is fully populated and ready to persist.
func (h *Handshake) Authenticate(ctx context.Context, address string, chainID int64, walletType core.WalletType) (*core.Session, error) {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	challenge, err := Retry(ctx, h.policy, func(ctx context.Context) (*core.Challenge, error) {
		return h.api.Challenge(ctx, address, chainID)
	})
	if err != nil {
		h.log.Warn("challenge request failed", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, err)
	}

	signature, err := h.provider.SignPersonal(ctx, address, []byte(challenge.Message))
	if err != nil {
		// Rejection and timeout are terminal; the typed cause propagates
		// so the caller can distinguish them from backend failures.
		if errors.Is(err, core.ErrUserRejected) || errors.Is(err, core.ErrSignatureTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, err)
	}

	result, err := Retry(ctx, h.policy, func(ctx context.Context) (*ports.VerifyResult, error) {
		return h.api.Verify(ctx, ports.VerifyRequest{
			Message:       challenge.Message,
			Signature:     signature,
			WalletAddress: address,
			ChainID:       chainID,
			WalletType:    walletType,
		})
	})
	if err != nil {
		h.log.Warn("signature verification failed", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, err)
	}

	h.log.Info("handshake complete",
		zap.String("address", address),
		zap.Int64("chain_id", chainID),
		zap.String("session_id", result.SessionID))

	return &core.Session{
		WalletAddress: address,
		ChainID:       chainID,
		WalletType:    walletType,
		SessionID:     result.SessionID,
		WalletID:      result.WalletID,
		CreatedAt:     h.now(),
	}, nil
}

// Revalidate asks the backend whether the ambient session is still live for
// the given address.
func (h *Handshake) Revalidate(ctx context.Context, address string) (bool, error) {
	info, err := h.api.SessionInfo(ctx)
	if err != nil {
		return false, err
	}
	if !info.Connected {
		return false, nil
	}
	live, err := core.NormalizeAddress(info.Wallet.Address)
	if err != nil {
		return false, nil
	}
	return live == address, nil
}
