package e2e

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/remote"
)

// TestOfflineBatchConverges builds a small workspace entirely offline, then
// drains and checks both sides hold the same state.
func TestOfflineBatchConverges(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.Remote.setOffline(true)

	base, err := h.Service.CreateBase(ctx, "crm", "")
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	table, err := h.Service.CreateTable(ctx, base.ID, "deals", "")
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := h.Service.CreateRecord(ctx, table.ID, map[string]any{"n": i}); err != nil {
			t.Fatalf("create record %d: %v", i, err)
		}
	}

	recs := h.localIDs(models.EntityRecord, table.ID)
	if _, err := h.Service.UpdateRecord(ctx, table.ID, recs[0], map[string]any{"n": 100}); err != nil {
		t.Fatalf("update record: %v", err)
	}
	if err := h.Service.DeleteRecord(ctx, table.ID, recs[1]); err != nil {
		t.Fatalf("delete record: %v", err)
	}

	h.drain(ctx)
	h.verifyConverged(ctx)
}

// TestRandomizedWorkloadConverges performs a random mix of mutations while
// connectivity flaps, syncing at arbitrary points, then verifies convergence.
func TestRandomizedWorkloadConverges(t *testing.T) {
	for _, seed := range []int64{7, 42, 1234} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			h := newHarness(t, seed)
			ctx := context.Background()

			for step := 0; step < 120; step++ {
				// Flap connectivity roughly every few operations.
				if h.Rand.Intn(5) == 0 {
					h.Remote.setOffline(h.Rand.Intn(2) == 0)
				}
				// Occasionally run a sync cycle mid-stream.
				if h.Rand.Intn(10) == 0 {
					if _, err := h.Scheduler.SyncNow(ctx); err != nil {
						t.Fatalf("step %d: sync: %v", step, err)
					}
				}
				h.randomOp(ctx, step)
			}

			h.drain(ctx)
			h.verifyConverged(ctx)
		})
	}
}

// randomOp performs one weighted-random mutation against valid current ids.
func (h *Harness) randomOp(ctx context.Context, step int) {
	h.T.Helper()

	bases := h.localIDs(models.EntityBase, "")
	if len(bases) == 0 {
		h.mustCreateBase(ctx, step)
		return
	}
	baseID := h.pick(bases)
	tables := h.localIDs(models.EntityTable, baseID)
	if len(tables) == 0 {
		h.mustCreateTable(ctx, baseID, step)
		return
	}
	tableID := h.pick(tables)
	records := h.localIDs(models.EntityRecord, tableID)

	switch n := h.Rand.Intn(10); {
	case n == 0 && len(bases) < 3:
		h.mustCreateBase(ctx, step)
	case n == 1 && len(tables) < 4:
		h.mustCreateTable(ctx, baseID, step)
	case n <= 5 || len(records) == 0:
		if _, err := h.Service.CreateRecord(ctx, tableID, map[string]any{"step": step}); err != nil {
			h.T.Fatalf("step %d: create record: %v", step, err)
		}
	case n <= 8:
		id := h.pick(records)
		_, err := h.Service.UpdateRecord(ctx, tableID, id, map[string]any{"step": step, "touched": true})
		// A record may already be awaiting deletion; skipping it is the
		// caller's only option.
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			h.T.Fatalf("step %d: update record %s: %v", step, id, err)
		}
	default:
		id := h.pick(records)
		if err := h.Service.DeleteRecord(ctx, tableID, id); err != nil && !errors.Is(err, remote.ErrNotFound) {
			h.T.Fatalf("step %d: delete record %s: %v", step, id, err)
		}
	}
}

func (h *Harness) mustCreateBase(ctx context.Context, step int) {
	h.T.Helper()
	if _, err := h.Service.CreateBase(ctx, fmt.Sprintf("base-%d", step), ""); err != nil {
		h.T.Fatalf("step %d: create base: %v", step, err)
	}
}

func (h *Harness) mustCreateTable(ctx context.Context, baseID string, step int) {
	h.T.Helper()
	if _, err := h.Service.CreateTable(ctx, baseID, fmt.Sprintf("table-%d", step), ""); err != nil {
		h.T.Fatalf("step %d: create table: %v", step, err)
	}
}
