// Package backendtest is an in-process reference backend implementing the
// wallet authentication contract: challenge issuance, EIP-191 signature
// verification, session introspection, and disconnect. Integration tests and
// the demo command run the real two-leg handshake against it.
package backendtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openex-labs/walletlink/core"
)

const sessionCookie = "wl_session"

// Backend holds the reference implementation's state.
type Backend struct {
	key       *ecdsa.PrivateKey
	csrfToken string
	domain    string
	router    *gin.Engine

	mu            sync.Mutex
	sessions      map[string]sessionRow
	usedNonces    map[string]struct{}
	failChallenge int
	failVerify    int
	failCode      string
}

type sessionRow struct {
	SessionID  string
	WalletID   string
	Address    string
	WalletType core.WalletType
	ChainID    int64
}

// New creates a backend that requires the given CSRF token on POSTs.
func New(csrfToken string) (*Backend, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	b := &Backend{
		key:        key,
		csrfToken:  csrfToken,
		domain:     "dash.openex.trade",
		router:     gin.New(),
		sessions:   make(map[string]sessionRow),
		usedNonces: make(map[string]struct{}),
	}
	b.setupRoutes()
	return b, nil
}

// Router returns the gin router, ready for httptest.NewServer.
func (b *Backend) Router() *gin.Engine {
	return b.router
}

func (b *Backend) setupRoutes() {
	auth := b.router.Group("/auth")
	auth.Use(b.csrfMiddleware())
	{
		auth.POST("/challenge", b.handleChallenge)
		auth.POST("/verify", b.handleVerify)
		auth.GET("/session", b.handleSession)
		auth.POST("/disconnect", b.handleDisconnect)
	}
}

// csrfMiddleware rejects POSTs without the expected X-CSRF-Token header.
func (b *Backend) csrfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.GetHeader("X-CSRF-Token") != b.csrfToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing or invalid CSRF token"})
			return
		}
		c.Next()
	}
}

// FailNextChallenge makes the next n challenge requests fail with the given
// error code at HTTP 423, simulating session-store contention.
func (b *Backend) FailNextChallenge(n int, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failChallenge = n
	b.failCode = code
}

// FailNextVerify makes the next n verify requests fail with the given error
// code at HTTP 423.
func (b *Backend) FailNextVerify(n int, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failVerify = n
	b.failCode = code
}

func (b *Backend) takeFault(counter *int) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if *counter <= 0 {
		return "", false
	}
	*counter--
	return b.failCode, true
}

func (b *Backend) handleChallenge(c *gin.Context) {
	if code, fail := b.takeFault(&b.failChallenge); fail {
		c.JSON(http.StatusLocked, gin.H{"error": "session store contention", "code": code})
		return
	}

	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		ChainID       int64  `json:"chain_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	address, err := core.NormalizeAddress(req.WalletAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}
	nonce := hex.EncodeToString(nonceBytes)

	token, err := signChallenge(b.key, address, nonce)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": buildMessage(b.domain, address, req.ChainID, nonce, token),
		"nonce":   nonce,
	})
}

func (b *Backend) handleVerify(c *gin.Context) {
	if code, fail := b.takeFault(&b.failVerify); fail {
		c.JSON(http.StatusLocked, gin.H{"error": "session store contention", "code": code})
		return
	}

	var req struct {
		Message       string `json:"message" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
		WalletAddress string `json:"wallet_address" binding:"required"`
		ChainID       int64  `json:"chain_id" binding:"required"`
		WalletType    string `json:"wallet_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	address, err := core.NormalizeAddress(req.WalletAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	tokenStr, err := extractToken(req.Message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge message"})
		return
	}
	claims, err := parseChallenge(b.key, tokenStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired challenge"})
		return
	}
	if claims.Subject != address {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "challenge was issued for a different address"})
		return
	}

	// Single use: a replayed nonce is rejected here, not client-side.
	b.mu.Lock()
	if _, used := b.usedNonces[claims.ID]; used {
		b.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "challenge already used"})
		return
	}
	b.usedNonces[claims.ID] = struct{}{}
	b.mu.Unlock()

	if err := verifySignature(req.Message, req.Signature, address); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	row := sessionRow{
		SessionID:  uuid.New().String(),
		WalletID:   uuid.New().String(),
		Address:    address,
		WalletType: core.ParseWalletType(req.WalletType),
		ChainID:    req.ChainID,
	}
	cookie := uuid.New().String()
	b.mu.Lock()
	b.sessions[cookie] = row
	b.mu.Unlock()

	c.SetCookie(sessionCookie, cookie, int(core.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"session_id": row.SessionID,
		"wallet_id":  row.WalletID,
	})
}

func (b *Backend) handleSession(c *gin.Context) {
	cookie, err := c.Cookie(sessionCookie)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	b.mu.Lock()
	row, ok := b.sessions[cookie]
	b.mu.Unlock()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected": true,
		"wallet": gin.H{
			"address":          row.Address,
			"wallet_type":      row.WalletType,
			"primary_chain_id": row.ChainID,
			"wallet_id":        row.WalletID,
		},
	})
}

func (b *Backend) handleDisconnect(c *gin.Context) {
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, cookie)
		b.mu.Unlock()
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DropSessions forgets all server-side sessions, for revalidation tests.
func (b *Backend) DropSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = make(map[string]sessionRow)
}

// verifySignature recovers the EIP-191 signer of message and compares it to
// the expected address.
func verifySignature(message, signature, address string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != 65 {
		return fmt.Errorf("signature must be 65 bytes")
	}
	// Wallets emit the recovery id as 27/28.
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}
	recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	if recovered != address {
		return fmt.Errorf("signer mismatch")
	}
	return nil
}
