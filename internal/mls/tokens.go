package mls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/mlssync/internal/metrics"
)

// TokenSource provides bearer tokens for the listing endpoint.
type TokenSource interface {
	// Token returns a valid access token, fetching a new one if necessary
	Token(ctx context.Context) (string, error)

	// Invalidate drops the cached token so the next Token call fetches a new one
	Invalidate()
}

// Credentials identify this service to the MLS token endpoint.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	APIKey       string // optional, sent as Authorization: Bearer
}

// tokenResponse is the body returned by the token endpoint
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenManager caches a client-credentials access token and refreshes it
// when it expires. One refresh happens at a time; concurrent callers wait
// for it and share the result.
type TokenManager struct {
	mu sync.Mutex

	credentials Credentials
	httpClient  *http.Client
	now         func() time.Time

	accessToken string
	expiresAt   time.Time

	// Margin before expiry to trigger refresh
	refreshMargin time.Duration
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithRefreshMargin sets the time before expiry to trigger a refresh
func WithRefreshMargin(d time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		m.refreshMargin = d
	}
}

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// WithTokenHTTPClient sets the HTTP client used for token requests
func WithTokenHTTPClient(c *http.Client) TokenManagerOption {
	return func(m *TokenManager) {
		m.httpClient = c
	}
}

// NewTokenManager creates a token manager for the given credentials.
func NewTokenManager(credentials Credentials, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		credentials: credentials,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Token returns the cached token, or requests a new one when none is cached
// or the cached one is within the refresh margin of its expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && !m.isExpiringSoon() {
		return m.accessToken, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.accessToken, nil
}

// Invalidate drops the cached token
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessToken = ""
	m.expiresAt = time.Time{}
}

// ExpiresAt returns the expiry of the cached token, zero when none is cached
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// refreshLocked requests a new token (caller must hold the lock)
func (m *TokenManager) refreshLocked(ctx context.Context) error {
	issuedAt := m.now()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", m.credentials.ClientID)
	form.Set("client_secret", m.credentials.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.credentials.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthenticationError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if m.credentials.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.credentials.APIKey)
	}

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("token", "error", time.Since(start).Seconds())
		return &AuthenticationError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest("token", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &AuthenticationError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return &AuthenticationError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return &AuthenticationError{StatusCode: resp.StatusCode, Err: errors.New("response has no access_token")}
	}

	m.accessToken = tokenResp.AccessToken
	m.expiresAt = issuedAt.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	log.Printf("MLS client: obtained access token, expires at %s", m.expiresAt.Format(time.RFC3339))
	return nil
}

// isExpiringSoon checks if the token is expired or expiring within the refresh margin
func (m *TokenManager) isExpiringSoon() bool {
	return !m.now().Before(m.expiresAt.Add(-m.refreshMargin))
}
