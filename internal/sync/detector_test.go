package sync

import (
	"encoding/json"
	"testing"

	"github.com/ferris/airbase/internal/remote"
)

func snap(version int64, data string) *remote.Snapshot {
	return &remote.Snapshot{ID: "rec-1", Version: version, Data: json.RawMessage(data)}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		baseVersion int64
		local       string
		remote      *remote.Snapshot
		want        Verdict
	}{
		{
			name:        "remote absent",
			baseVersion: 2,
			local:       `{"fields":{"a":1}}`,
			remote:      nil,
			want:        VerdictNoConflict,
		},
		{
			name:        "remote unchanged since base",
			baseVersion: 2,
			local:       `{"fields":{"a":1}}`,
			remote:      snap(2, `{"fields":{"a":0}}`),
			want:        VerdictNoConflict,
		},
		{
			name:        "remote older than base",
			baseVersion: 5,
			local:       `{"fields":{"a":1}}`,
			remote:      snap(3, `{"fields":{"a":0}}`),
			want:        VerdictNoConflict,
		},
		{
			name:        "remote advanced, same field differs",
			baseVersion: 2,
			local:       `{"fields":{"a":1}}`,
			remote:      snap(3, `{"fields":{"a":99}}`),
			want:        VerdictConflict,
		},
		{
			name:        "remote advanced, disjoint fields",
			baseVersion: 2,
			local:       `{"fields":{"a":1}}`,
			remote:      snap(3, `{"fields":{"b":99}}`),
			want:        VerdictNoConflict,
		},
		{
			name:        "remote advanced, overlapping field same value",
			baseVersion: 2,
			local:       `{"fields":{"a":1,"b":2}}`,
			remote:      snap(3, `{"fields":{"a":1,"c":7}}`),
			want:        VerdictNoConflict,
		},
		{
			name:        "metadata-only differences never conflict",
			baseVersion: 1,
			local:       `{"name":"tasks","version":1,"updated_at":"2026-01-01T00:00:00Z"}`,
			remote:      snap(4, `{"name":"tasks","version":4,"updated_at":"2026-02-01T00:00:00Z"}`),
			want:        VerdictNoConflict,
		},
		{
			name:        "top-level name clash",
			baseVersion: 1,
			local:       `{"name":"renamed locally"}`,
			remote:      snap(2, `{"name":"renamed remotely"}`),
			want:        VerdictConflict,
		},
		{
			name:        "unparseable local payload on diverged version",
			baseVersion: 1,
			local:       `not json`,
			remote:      snap(2, `{"fields":{}}`),
			want:        VerdictConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.baseVersion, json.RawMessage(tt.local), tt.remote)
			if got != tt.want {
				t.Errorf("Detect() = %s, want %s", got, tt.want)
			}
		})
	}
}
