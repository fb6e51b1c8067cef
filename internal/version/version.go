// Package version compares release versions and checks GitHub for newer
// releases of the ab binary.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// releaseURL points at the latest-release endpoint. Variable so tests can
// redirect it at a local server.
var releaseURL = "https://api.github.com/repos/ferris/airbase/releases/latest"

// Release is the subset of the GitHub release response we read.
type Release struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// CheckResult holds the outcome of an update check.
type CheckResult struct {
	CurrentVersion string
	LatestVersion  string
	UpdateURL      string
	HasUpdate      bool
	Error          error
}

// Check fetches the latest release and compares it against currentVersion.
// Development builds are never reported as outdated.
func Check(currentVersion string) CheckResult {
	result := CheckResult{CurrentVersion: currentVersion}

	if IsDevelopment(currentVersion) {
		return result
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(releaseURL)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("github api: %s", resp.Status)
		return result
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		result.Error = err
		return result
	}

	result.LatestVersion = release.TagName
	result.UpdateURL = release.HTMLURL
	result.HasUpdate = IsNewer(release.TagName, currentVersion)
	return result
}

// IsDevelopment returns true for non-release version strings.
func IsDevelopment(v string) bool {
	if v == "" || v == "unknown" || v == "dev" || v == "devel" {
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9]+([.-][a-zA-Z0-9]+)*)?$`)

// IsNewer reports whether candidate is a strictly newer release than current.
// Unparseable versions compare as not-newer. A release always beats its own
// prereleases (v1.2.0 is newer than v1.2.0-rc.1).
func IsNewer(candidate, current string) bool {
	cm := versionRegex.FindStringSubmatch(candidate)
	im := versionRegex.FindStringSubmatch(current)
	if cm == nil || im == nil {
		return false
	}

	for i := 1; i <= 3; i++ {
		cn, _ := strconv.Atoi(cm[i])
		in, _ := strconv.Atoi(im[i])
		if cn != in {
			return cn > in
		}
	}

	// Same core version: only a final release upgrades a prerelease.
	return cm[4] == "" && im[4] != ""
}
