package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/libris/pos/internal/remote"
)

// expiryLeeway treats tokens expiring within this window as already expired,
// so a request in flight does not race the expiry.
const expiryLeeway = 30 * time.Second

// TokenProvider implements remote.TokenSource over the stored credentials.
// It inspects the access token's exp claim locally and refreshes proactively
// rather than spending a round trip on a doomed request.
type TokenProvider struct {
	mu      sync.Mutex
	baseURL string
	creds   *Credentials
}

// NewTokenProvider builds a provider for the given credentials.
func NewTokenProvider(baseURL string, creds *Credentials) *TokenProvider {
	return &TokenProvider{baseURL: baseURL, creds: creds}
}

// Token returns the current access token, refreshing first when the token is
// missing or about to expire.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.creds == nil || p.creds.Refresh == "" {
		return "", fmt.Errorf("not logged in")
	}
	if p.creds.Access != "" && !tokenExpired(p.creds.Access) {
		return p.creds.Access, nil
	}
	return p.refreshLocked(ctx)
}

// Refresh forces a new access token regardless of the current one's expiry.
func (p *TokenProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.creds == nil || p.creds.Refresh == "" {
		return "", fmt.Errorf("not logged in")
	}
	return p.refreshLocked(ctx)
}

// Clear drops stored credentials after a rejected refresh, forcing
// re-authentication on the next command.
func (p *TokenProvider) Clear() error {
	p.mu.Lock()
	p.creds = nil
	p.mu.Unlock()
	return ClearAuth()
}

func (p *TokenProvider) refreshLocked(ctx context.Context) (string, error) {
	access, err := remote.RefreshAccess(ctx, p.baseURL, p.creds.Refresh)
	if err != nil {
		return "", err
	}
	p.creds.Access = access
	if err := SaveAuth(p.creds); err != nil {
		// Token still works for this process; persisting it is best effort.
		slog.Warn("persist refreshed token", "err", err)
	}
	return access, nil
}

// tokenExpired parses the JWT's exp claim without verifying the signature
// (verification is the server's job) and applies the leeway window. Tokens
// that cannot be parsed are treated as expired.
func tokenExpired(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return time.Now().Add(expiryLeeway).After(exp.Time)
}
