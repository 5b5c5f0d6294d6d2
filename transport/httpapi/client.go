// Package httpapi implements the backend authentication contract over HTTP:
// challenge issuance, signature verification, session introspection, and
// disconnect. Every request carries the CSRF token supplied by the caller;
// the ambient session cookie is kept in the client's jar.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
)

const (
	challengePath  = "/auth/challenge"
	verifyPath     = "/auth/verify"
	sessionPath    = "/auth/session"
	disconnectPath = "/auth/disconnect"

	csrfHeader = "X-CSRF-Token"

	defaultRequestTimeout = 15 * time.Second
)

// CSRFSource supplies the token attached to every request. The token comes
// from an external collaborator and may rotate between calls.
type CSRFSource func() string

// Client implements ports.AuthAPI against a walletlink backend.
type Client struct {
	baseURL string
	http    *http.Client
	csrf    CSRFSource
}

// NewClient creates an API client for the backend at baseURL.
func NewClient(baseURL string, csrf CSRFSource) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if csrf == nil {
		csrf = func() string { return "" }
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: defaultRequestTimeout,
		},
		csrf: csrf,
	}, nil
}

// SetHTTPClient swaps the underlying client, for tests.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

type challengeRequest struct {
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`
}

// Challenge requests a SIWE challenge for the address on the chain.
func (c *Client) Challenge(ctx context.Context, address string, chainID int64) (*core.Challenge, error) {
	var challenge core.Challenge
	err := c.post(ctx, challengePath, challengeRequest{WalletAddress: address, ChainID: chainID}, &challenge)
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// Verify submits the signed challenge.
func (c *Client) Verify(ctx context.Context, req ports.VerifyRequest) (*ports.VerifyResult, error) {
	var result ports.VerifyResult
	if err := c.post(ctx, verifyPath, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SessionInfo introspects the ambient session.
func (c *Client) SessionInfo(ctx context.Context) (*ports.SessionInfo, error) {
	var info ports.SessionInfo
	if err := c.do(ctx, http.MethodGet, sessionPath, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Disconnect tears down the ambient session server-side.
func (c *Client) Disconnect(ctx context.Context) error {
	var resp struct {
		Success bool `json:"success"`
	}
	return c.post(ctx, disconnectPath, nil, &resp)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.csrf(); token != "" {
		req.Header.Set(csrfHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, core.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
