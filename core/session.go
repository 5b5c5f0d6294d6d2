package core

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SessionTTL is how long a persisted session stays usable without
// re-authentication.
const SessionTTL = 24 * time.Hour

// Session is the persisted record of an authenticated wallet session. It is
// only ever written after a successful signature verification, as a whole.
type Session struct {
	WalletAddress string     `json:"wallet_address"`
	ChainID       int64      `json:"chain_id"`
	WalletType    WalletType `json:"wallet_type"`
	SessionID     string     `json:"session_id"`
	WalletID      string     `json:"wallet_id"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Validate checks that the record is complete enough to restore from.
func (s *Session) Validate() error {
	if !common.IsHexAddress(s.WalletAddress) {
		return ErrInvalidAddress
	}
	if s.ChainID <= 0 || s.SessionID == "" || s.WalletID == "" {
		return ErrSessionInvalid
	}
	return nil
}

// Expired reports whether the record's age exceeds ttl at the given instant.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return s.CreatedAt.Add(ttl).Before(now)
}

// Challenge is the short-lived server-issued value signed during the
// handshake. It is never persisted; replay protection is the backend's job.
type Challenge struct {
	Message string `json:"message"`
	Nonce   string `json:"nonce"`
}

// NormalizeAddress lowercases a hex address after validating it.
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}
