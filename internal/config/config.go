package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SyncSettings tunes the sync scheduler.
type SyncSettings struct {
	Interval   string `json:"interval,omitempty"`    // duration string, default "5m"
	RetryLimit *int   `json:"retry_limit,omitempty"` // nil = default 3
	Auto       *bool  `json:"auto,omitempty"`        // nil = default true
}

// Config is the global airbase config stored at ~/.config/ab/config.json.
type Config struct {
	ServerURL string       `json:"server_url,omitempty"`
	Sync      SyncSettings `json:"sync"`
}

// AuthCredentials stores authentication state at ~/.config/ab/auth.json.
type AuthCredentials struct {
	APIKey   string `json:"api_key,omitempty"`
	Token    string `json:"token,omitempty"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

const (
	defaultServerURL  = "http://localhost:3000/api/v1"
	defaultInterval   = 5 * time.Minute
	defaultRetryLimit = 3
)

// ConfigDir returns ~/.config/ab, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "ab")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config from ~/.config/ab/config.json.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
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

// SaveConfig writes the global config to ~/.config/ab/config.json.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadAuth reads auth credentials from ~/.config/ab/auth.json. Returns nil
// when no credentials are stored.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
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
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth credentials to ~/.config/ab/auth.json (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the API base URL.
// Priority: AB_SERVER_URL env > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("AB_SERVER_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: AB_API_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("AB_API_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// GetToken returns the stored bearer token, if any.
func GetToken() string {
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.Token
	}
	return ""
}

// IsAuthenticated returns true if an API key or token is available.
func IsAuthenticated() bool {
	return GetAPIKey() != "" || GetToken() != ""
}

// GetDeviceID returns the device ID from auth.json, generating and
// persisting one if needed.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds == nil {
		creds = &AuthCredentials{}
	}
	if creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	creds.DeviceID = uuid.NewString()
	if err := SaveAuth(creds); err != nil {
		return "", err
	}
	return creds.DeviceID, nil
}

// GetSyncInterval returns the scheduler tick interval.
func GetSyncInterval() time.Duration {
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Interval != "" {
		if d, perr := time.ParseDuration(cfg.Sync.Interval); perr == nil && d > 0 {
			return d
		}
	}
	return defaultInterval
}

// GetRetryLimit returns the retry bound before a change is parked as failed.
// Priority: AB_RETRY_LIMIT env > config.json > default (3).
func GetRetryLimit() int {
	if v := os.Getenv("AB_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.RetryLimit != nil && *cfg.Sync.RetryLimit > 0 {
		return *cfg.Sync.RetryLimit
	}
	return defaultRetryLimit
}

// AutoSyncEnabled returns true if mutations should trigger a sync cycle.
// Checks AB_AUTO_SYNC env var, then config. Defaults to true.
func AutoSyncEnabled() bool {
	if v := os.Getenv("AB_AUTO_SYNC"); v != "" {
		return v == "1" || v == "true"
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Auto != nil {
		return *cfg.Sync.Auto
	}
	return true
}
