// Package config handles the global config and stored credentials under
// ~/.config/pos, both plain JSON files in the same shape the rest of the
// tooling expects.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultServerURL = "http://localhost:8000"

// SyncSettings holds sync-related tunables.
type SyncSettings struct {
	Debounce      string `json:"debounce,omitempty"`       // duration string, default "1s"
	ProbeInterval string `json:"probe_interval,omitempty"` // duration string, default "30s"
}

// Config is the global config stored at ~/.config/pos/config.json.
type Config struct {
	ServerURL string       `json:"server_url,omitempty"`
	Sync      SyncSettings `json:"sync"`
}

// Credentials stores authentication state at ~/.config/pos/auth.json.
// Tokens are opaque to everything except the token provider.
type Credentials struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	Username  string `json:"username"`
	ServerURL string `json:"server_url"`
	DeviceID  string `json:"device_id"`
}

// Dir returns ~/.config/pos, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "pos")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the global config, returning defaults when the file is absent.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// EffectiveServerURL resolves the server URL: POS_SERVER_URL env var, then
// config, then the local default.
func (c *Config) EffectiveServerURL() string {
	if v := os.Getenv("POS_SERVER_URL"); v != "" {
		return v
	}
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return defaultServerURL
}

// DebounceDuration parses the drain debounce, defaulting to one second.
func (c *Config) DebounceDuration() time.Duration {
	if d, err := time.ParseDuration(c.Sync.Debounce); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// ProbeIntervalDuration parses the connectivity probe interval, defaulting
// to thirty seconds.
func (c *Config) ProbeIntervalDuration() time.Duration {
	if d, err := time.ParseDuration(c.Sync.ProbeInterval); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// LoadAuth reads stored credentials, or nil if not logged in.
func LoadAuth() (*Credentials, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes credentials with owner-only permissions, assigning a
// device id on first save.
func SaveAuth(creds *Credentials) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if creds.DeviceID == "" {
		creds.DeviceID, err = generateDeviceID()
		if err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes stored credentials. Missing file is not an error.
func ClearAuth() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsAuthenticated reports whether credentials are stored.
func IsAuthenticated() bool {
	creds, err := LoadAuth()
	return err == nil && creds != nil && creds.Refresh != ""
}

func generateDeviceID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
