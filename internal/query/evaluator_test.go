package query

import (
	"testing"
	"time"

	"github.com/ferris/airbase/internal/models"
)

func testRecords() []models.Record {
	return []models.Record{
		{
			ID:        "rec-1",
			TableID:   "tbl-1",
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Fields: map[string]any{
				"title":  "Launch checklist",
				"status": "done",
				"points": float64(5),
				"tags":   []any{"launch", "ops"},
				"due":    "2026-03-10",
			},
		},
		{
			ID:        "rec-2",
			TableID:   "tbl-1",
			CreatedAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
			Fields: map[string]any{
				"title":    "Draft announcement",
				"status":   "open",
				"points":   float64(2),
				"archived": false,
				"due":      "2026-04-01",
			},
		},
		{
			ID:        "rec-3",
			TableID:   "tbl-1",
			CreatedAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
			Fields: map[string]any{
				"title":  "Retro notes",
				"status": "open",
				"notes":  "",
			},
		},
	}
}

func filterIDs(t *testing.T, input string) []string {
	t.Helper()
	q, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	matched, err := NewEvaluator(q).Filter(testRecords())
	if err != nil {
		t.Fatalf("Filter(%q): %v", input, err)
	}
	ids := make([]string, len(matched))
	for i, r := range matched {
		ids[i] = r.ID
	}
	return ids
}

func assertIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("matched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("matched %v, want %v", got, want)
		}
	}
}

func TestFilterEquality(t *testing.T) {
	assertIDs(t, filterIDs(t, `status = open`), []string{"rec-2", "rec-3"})
	assertIDs(t, filterIDs(t, `status = OPEN`), []string{"rec-2", "rec-3"})
	assertIDs(t, filterIDs(t, `status != open`), []string{"rec-1"})
	assertIDs(t, filterIDs(t, `points = 5`), []string{"rec-1"})
	assertIDs(t, filterIDs(t, `archived = false`), []string{"rec-2"})
}

func TestFilterNumericComparisons(t *testing.T) {
	assertIDs(t, filterIDs(t, `points > 2`), []string{"rec-1"})
	assertIDs(t, filterIDs(t, `points >= 2`), []string{"rec-1", "rec-2"})
	assertIDs(t, filterIDs(t, `points < 3`), []string{"rec-2"})
}

func TestFilterContains(t *testing.T) {
	assertIDs(t, filterIDs(t, `title ~ launch`), []string{"rec-1"})
	assertIDs(t, filterIDs(t, `title !~ launch`), []string{"rec-2", "rec-3"})
	// Lists match when any element contains the needle.
	assertIDs(t, filterIDs(t, `tags ~ ops`), []string{"rec-1"})
}

func TestFilterDates(t *testing.T) {
	assertIDs(t, filterIDs(t, `due < 2026-03-15`), []string{"rec-1"})
	assertIDs(t, filterIDs(t, `due >= 2026-03-15`), []string{"rec-2"})
	assertIDs(t, filterIDs(t, `created >= 2026-03-03`), []string{"rec-2", "rec-3"})
	assertIDs(t, filterIDs(t, `created = 2026-03-01`), []string{"rec-1"})
}

func TestFilterEmptyAndHas(t *testing.T) {
	// notes is "" on rec-3 and absent elsewhere.
	assertIDs(t, filterIDs(t, `notes = EMPTY`), []string{"rec-1", "rec-2", "rec-3"})
	assertIDs(t, filterIDs(t, `has(points)`), []string{"rec-1", "rec-2"})
	assertIDs(t, filterIDs(t, `has(notes)`), nil)
}

func TestFilterAbsentFields(t *testing.T) {
	// Absent fields satisfy only negative operators.
	assertIDs(t, filterIDs(t, `archived = true`), nil)
	assertIDs(t, filterIDs(t, `due != 2026-03-10`), []string{"rec-2", "rec-3"})
}

func TestFilterBooleanCombinations(t *testing.T) {
	assertIDs(t, filterIDs(t, `status = open AND points > 1`), []string{"rec-2"})
	assertIDs(t, filterIDs(t, `status = done OR points = 2`), []string{"rec-1", "rec-2"})
	assertIDs(t, filterIDs(t, `NOT status = open`), []string{"rec-1"})
	assertIDs(t, filterIDs(t, `(status = done OR status = open) AND has(due)`), []string{"rec-1", "rec-2"})
}

func TestFilterTextSearch(t *testing.T) {
	assertIDs(t, filterIDs(t, `"announcement"`), []string{"rec-2"})
	assertIDs(t, filterIDs(t, `"rec-3"`), []string{"rec-3"})
	assertIDs(t, filterIDs(t, `"no such text"`), nil)
}

func TestFilterBlankMatchesAll(t *testing.T) {
	assertIDs(t, filterIDs(t, ""), []string{"rec-1", "rec-2", "rec-3"})
}

func TestFilterComparisonTypeError(t *testing.T) {
	q, err := Parse(`title > 3`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := NewEvaluator(q).Filter(testRecords()); err == nil {
		t.Fatal("comparing a string field numerically should fail")
	}
}
