package version

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsNewer(t *testing.T) {
	cases := []struct {
		candidate, current string
		want               bool
	}{
		{"v1.2.4", "v1.2.3", true},
		{"v1.3.0", "v1.2.9", true},
		{"v2.0.0", "v1.9.9", true},
		{"v1.2.3", "v1.2.3", false},
		{"v1.2.2", "v1.2.3", false},
		{"1.2.4", "v1.2.3", true},
		{"v1.2.3", "v1.2.3-rc.1", true},
		{"v1.2.3-rc.2", "v1.2.3-rc.1", false},
		{"not-a-version", "v1.2.3", false},
		{"v1.2.4", "garbage", false},
	}
	for _, tc := range cases {
		if got := IsNewer(tc.candidate, tc.current); got != tc.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tc.candidate, tc.current, got, tc.want)
		}
	}
}

func TestIsDevelopment(t *testing.T) {
	for _, v := range []string{"", "dev", "devel", "unknown", "devel+abc123"} {
		if !IsDevelopment(v) {
			t.Errorf("%q should be a development version", v)
		}
	}
	if IsDevelopment("v1.2.3") {
		t.Error("v1.2.3 should not be a development version")
	}
}

func TestCheckAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name":"v9.9.9","html_url":"https://example.com/rel"}`))
	}))
	defer server.Close()
	old := releaseURL
	releaseURL = server.URL
	defer func() { releaseURL = old }()

	result := Check("v1.0.0")
	if result.Error != nil {
		t.Fatalf("check: %v", result.Error)
	}
	if !result.HasUpdate || result.LatestVersion != "v9.9.9" {
		t.Fatalf("result: %+v", result)
	}

	// Development builds skip the network entirely.
	releaseURL = "http://127.0.0.1:0"
	dev := Check("dev")
	if dev.Error != nil || dev.HasUpdate {
		t.Fatalf("dev check should be a no-op: %+v", dev)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadCache(); err == nil {
		t.Fatal("empty cache should error")
	}

	entry := &CacheEntry{
		LatestVersion:  "v2.0.0",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now(),
		HasUpdate:      true,
	}
	if err := SaveCache(entry); err != nil {
		t.Fatalf("save cache: %v", err)
	}

	loaded, err := LoadCache()
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	if loaded.LatestVersion != "v2.0.0" || !loaded.HasUpdate {
		t.Fatalf("loaded: %+v", loaded)
	}

	if !IsCacheValid(loaded, "v1.0.0") {
		t.Error("fresh cache for same version should be valid")
	}
	if IsCacheValid(loaded, "v1.1.0") {
		t.Error("cache for a different binary version should be stale")
	}
	loaded.CheckedAt = time.Now().Add(-48 * time.Hour)
	if IsCacheValid(loaded, "v1.0.0") {
		t.Error("expired cache should be stale")
	}
}
