// Package store persists the wallet session record. Both implementations
// keep a single JSON-serialized record under a well-known key, enforce the
// session TTL on load, and fail open: corrupt or expired stored bytes are
// cleared and reported as absence, never as an error.
package store

import (
	"encoding/json"
	"time"

	"github.com/openex-labs/walletlink/core"
)

// SessionKey is the well-known storage key for the session record.
const SessionKey = "walletlink:session"

func encodeSession(session *core.Session) ([]byte, error) {
	return json.Marshal(session)
}

// decodeSession returns nil for corrupt or expired bytes; the caller clears
// the stored value in that case.
func decodeSession(raw []byte, now time.Time, ttl time.Duration) *core.Session {
	var session core.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil
	}
	if session.Validate() != nil {
		return nil
	}
	if session.Expired(now, ttl) {
		return nil
	}
	return &session
}
