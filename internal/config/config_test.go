package config

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestEffectiveServerURL(t *testing.T) {
	cfg := &Config{}
	if got := cfg.EffectiveServerURL(); got != defaultServerURL {
		t.Errorf("default: got %q, want %q", got, defaultServerURL)
	}

	cfg.ServerURL = "https://shop.example.com"
	if got := cfg.EffectiveServerURL(); got != "https://shop.example.com" {
		t.Errorf("configured: got %q", got)
	}

	t.Setenv("POS_SERVER_URL", "https://env.example.com")
	if got := cfg.EffectiveServerURL(); got != "https://env.example.com" {
		t.Errorf("env override: got %q", got)
	}
}

func TestSyncDurationDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.DebounceDuration(); got != time.Second {
		t.Errorf("debounce default: got %v", got)
	}
	if got := cfg.ProbeIntervalDuration(); got != 30*time.Second {
		t.Errorf("probe interval default: got %v", got)
	}

	cfg.Sync.Debounce = "250ms"
	cfg.Sync.ProbeInterval = "5s"
	if got := cfg.DebounceDuration(); got != 250*time.Millisecond {
		t.Errorf("debounce: got %v", got)
	}
	if got := cfg.ProbeIntervalDuration(); got != 5*time.Second {
		t.Errorf("probe interval: got %v", got)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestTokenExpired(t *testing.T) {
	if !tokenExpired(signedToken(t, time.Now().Add(-time.Minute))) {
		t.Error("expired token reported as valid")
	}
	if tokenExpired(signedToken(t, time.Now().Add(time.Hour))) {
		t.Error("fresh token reported as expired")
	}
	// Inside the leeway window counts as expired, to refresh proactively.
	if !tokenExpired(signedToken(t, time.Now().Add(expiryLeeway/2))) {
		t.Error("token inside the leeway window not treated as expired")
	}
	if !tokenExpired("not-a-jwt") {
		t.Error("garbage token should be treated as expired")
	}
}
