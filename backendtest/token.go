package backendtest

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	audienceChallenge = "session:challenge"
	challengeTTL      = 5 * time.Minute
)

// challengeClaims bind the nonce into a signed token so verification stays
// stateless: the token travels inside the challenge message itself.
type challengeClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

func signChallenge(key *ecdsa.PrivateKey, address, nonce string) (string, error) {
	now := time.Now()
	claims := challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.ToLower(address),
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(challengeTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{audienceChallenge},
		},
		Nonce: nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}
	return signed, nil
}

func parseChallenge(key *ecdsa.PrivateKey, tokenStr string) (*challengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &challengeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &key.PublicKey, nil
	}, jwt.WithAudience(audienceChallenge))
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge token: %w", err)
	}
	claims, ok := token.Claims.(*challengeClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid challenge token")
	}
	return claims, nil
}

// buildMessage renders the SIWE-style text the wallet signs. The signed
// challenge token is embedded so the verify leg can recover it.
func buildMessage(domain, address string, chainID int64, nonce, token string) string {
	return fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\nURI: https://%s\nChain ID: %d\nNonce: %s\nIssued At: %s\nToken: %s",
		domain, address, domain, chainID, nonce, time.Now().UTC().Format(time.RFC3339), token)
}

// extractToken pulls the embedded challenge token back out of a message.
func extractToken(message string) (string, error) {
	for _, line := range strings.Split(message, "\n") {
		if rest, ok := strings.CutPrefix(line, "Token: "); ok {
			return strings.TrimSpace(rest), nil
		}
	}
	return "", fmt.Errorf("message carries no challenge token")
}
