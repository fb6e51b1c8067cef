package config

import (
	"testing"
	"time"
)

// Point the config dir at a scratch home so tests never touch the real one.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestDefaults(t *testing.T) {
	isolateHome(t)
	t.Setenv("AB_SERVER_URL", "")
	t.Setenv("AB_API_KEY", "")
	t.Setenv("AB_RETRY_LIMIT", "")
	t.Setenv("AB_AUTO_SYNC", "")

	if got := GetServerURL(); got != "http://localhost:3000/api/v1" {
		t.Errorf("server url: got %q", got)
	}
	if got := GetSyncInterval(); got != 5*time.Minute {
		t.Errorf("interval: got %v", got)
	}
	if got := GetRetryLimit(); got != 3 {
		t.Errorf("retry limit: got %d", got)
	}
	if !AutoSyncEnabled() {
		t.Error("auto sync should default on")
	}
	if IsAuthenticated() {
		t.Error("no credentials should mean unauthenticated")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("AB_SERVER_URL", "https://air.example.com/api/v1")
	t.Setenv("AB_API_KEY", "env-key")
	t.Setenv("AB_RETRY_LIMIT", "5")
	t.Setenv("AB_AUTO_SYNC", "false")

	if got := GetServerURL(); got != "https://air.example.com/api/v1" {
		t.Errorf("server url: got %q", got)
	}
	if got := GetAPIKey(); got != "env-key" {
		t.Errorf("api key: got %q", got)
	}
	if got := GetRetryLimit(); got != 5 {
		t.Errorf("retry limit: got %d", got)
	}
	if AutoSyncEnabled() {
		t.Error("AB_AUTO_SYNC=false should disable auto sync")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	isolateHome(t)
	t.Setenv("AB_SERVER_URL", "")
	t.Setenv("AB_RETRY_LIMIT", "")

	limit := 7
	auto := false
	if err := SaveConfig(&Config{
		ServerURL: "http://sync.local/api/v1",
		Sync:      SyncSettings{Interval: "30s", RetryLimit: &limit, Auto: &auto},
	}); err != nil {
		t.Fatalf("save config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServerURL != "http://sync.local/api/v1" {
		t.Errorf("server url: got %q", cfg.ServerURL)
	}
	if got := GetSyncInterval(); got != 30*time.Second {
		t.Errorf("interval: got %v", got)
	}
	if got := GetRetryLimit(); got != 7 {
		t.Errorf("retry limit: got %d", got)
	}
	if AutoSyncEnabled() {
		t.Error("auto sync should honor the saved setting")
	}
}

func TestAuthRoundTrip(t *testing.T) {
	isolateHome(t)
	t.Setenv("AB_API_KEY", "")

	creds, err := LoadAuth()
	if err != nil {
		t.Fatalf("load auth: %v", err)
	}
	if creds != nil {
		t.Fatalf("expected nil before login, got %+v", creds)
	}

	if err := SaveAuth(&AuthCredentials{APIKey: "k-1", Email: "a@b.c"}); err != nil {
		t.Fatalf("save auth: %v", err)
	}
	if got := GetAPIKey(); got != "k-1" {
		t.Errorf("api key: got %q", got)
	}
	if !IsAuthenticated() {
		t.Error("stored key should authenticate")
	}

	if err := ClearAuth(); err != nil {
		t.Fatalf("clear auth: %v", err)
	}
	if IsAuthenticated() {
		t.Error("cleared credentials should not authenticate")
	}
	// Clearing twice is fine.
	if err := ClearAuth(); err != nil {
		t.Fatalf("clear auth again: %v", err)
	}
}

func TestDeviceIDPersists(t *testing.T) {
	isolateHome(t)

	first, err := GetDeviceID()
	if err != nil {
		t.Fatalf("device id: %v", err)
	}
	if first == "" {
		t.Fatal("device id should be generated")
	}
	second, err := GetDeviceID()
	if err != nil {
		t.Fatalf("device id again: %v", err)
	}
	if second != first {
		t.Fatalf("device id changed: %q vs %q", first, second)
	}
}
