// Package e2e drives the whole engine — service, queue, scheduler — against
// an in-memory remote authority whose reachability flips mid-run, and checks
// that the local store and the server converge once connectivity returns.
package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	gosync "sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/remote"
	"github.com/ferris/airbase/internal/service"
	absync "github.com/ferris/airbase/internal/sync"
)

// flakyRemote is an in-memory remote authority with a reachability switch.
// While offline every call fails with ErrUnreachable, exactly like a dead
// network.
type flakyRemote struct {
	mu      gosync.Mutex
	offline bool
	nextID  int
	objects map[string]*remote.Snapshot
	parents map[string]string
	idem    map[string]*remote.Snapshot
}

func newFlakyRemote() *flakyRemote {
	return &flakyRemote{
		objects: map[string]*remote.Snapshot{},
		parents: map[string]string{},
		idem:    map[string]*remote.Snapshot{},
	}
}

func (f *flakyRemote) setOffline(offline bool) {
	f.mu.Lock()
	f.offline = offline
	f.mu.Unlock()
}

func objKey(entityType models.EntityType, id string) string {
	return string(entityType) + "/" + id
}

func (f *flakyRemote) Create(ctx context.Context, entityType models.EntityType, parentID string, payload json.RawMessage, idempotencyKey string) (*remote.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, remote.ErrUnreachable
	}
	if snap, ok := f.idem[idempotencyKey]; ok {
		return snap, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: bad payload", remote.ErrValidation)
	}
	f.nextID++
	id := fmt.Sprintf("%s-%04d", entityType, f.nextID)
	doc["id"] = id
	data, _ := json.Marshal(doc)
	snap := &remote.Snapshot{ID: id, Version: 1, Data: data, UpdatedAt: time.Now()}
	f.objects[objKey(entityType, id)] = snap
	f.parents[objKey(entityType, id)] = parentID
	if idempotencyKey != "" {
		f.idem[idempotencyKey] = snap
	}
	return snap, nil
}

func (f *flakyRemote) Get(ctx context.Context, entityType models.EntityType, parentID, id string) (*remote.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, remote.ErrUnreachable
	}
	snap, ok := f.objects[objKey(entityType, id)]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return snap, nil
}

func (f *flakyRemote) List(ctx context.Context, entityType models.EntityType, parentID string) ([]remote.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, remote.ErrUnreachable
	}
	var out []remote.Snapshot
	for k, snap := range f.objects {
		if strings.HasPrefix(k, string(entityType)+"/") && (parentID == "" || f.parents[k] == parentID) {
			out = append(out, *snap)
		}
	}
	return out, nil
}

func (f *flakyRemote) Update(ctx context.Context, entityType models.EntityType, parentID, id string, payload json.RawMessage) (*remote.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, remote.ErrUnreachable
	}
	snap, ok := f.objects[objKey(entityType, id)]
	if !ok {
		return nil, remote.ErrNotFound
	}
	var doc, patch map[string]any
	json.Unmarshal(snap.Data, &doc)
	if err := json.Unmarshal(payload, &patch); err != nil {
		return nil, fmt.Errorf("%w: bad payload", remote.ErrValidation)
	}
	for k, v := range patch {
		if fields, ok := v.(map[string]any); ok && k == "fields" {
			merged, _ := doc["fields"].(map[string]any)
			if merged == nil {
				merged = map[string]any{}
			}
			for fk, fv := range fields {
				merged[fk] = fv
			}
			doc["fields"] = merged
			continue
		}
		doc[k] = v
	}
	data, _ := json.Marshal(doc)
	next := &remote.Snapshot{ID: id, Version: snap.Version + 1, Data: data, UpdatedAt: time.Now()}
	f.objects[objKey(entityType, id)] = next
	return next, nil
}

func (f *flakyRemote) Delete(ctx context.Context, entityType models.EntityType, parentID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return remote.ErrUnreachable
	}
	if _, ok := f.objects[objKey(entityType, id)]; !ok {
		return remote.ErrNotFound
	}
	delete(f.objects, objKey(entityType, id))
	delete(f.parents, objKey(entityType, id))
	return nil
}

func (f *flakyRemote) Healthy(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.offline
}

var _ remote.API = (*flakyRemote)(nil)

func (f *flakyRemote) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// Harness wires the full client stack over a flaky remote.
type Harness struct {
	T         *testing.T
	Store     *db.DB
	Service   *service.Service
	Scheduler *absync.Scheduler
	Remote    *flakyRemote
	Rand      *rand.Rand
}

func newHarness(t *testing.T, seed int64) *Harness {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := db.OpenConn(conn)
	if err != nil {
		t.Fatalf("init schema: %v", err)
	}

	api := newFlakyRemote()
	return &Harness{
		T:         t,
		Store:     store,
		Service:   service.New(store, api),
		Scheduler: absync.New(store, api, absync.Options{Interval: time.Hour, RetryLimit: 3}),
		Remote:    api,
		Rand:      rand.New(rand.NewSource(seed)),
	}
}

// drain brings the remote online and syncs until the queue is empty.
func (h *Harness) drain(ctx context.Context) {
	h.T.Helper()
	h.Remote.setOffline(false)
	for i := 0; i < 20; i++ {
		stats, err := h.Scheduler.SyncNow(ctx)
		if err != nil {
			h.T.Fatalf("drain cycle: %v", err)
		}
		if stats.Conflicts > 0 {
			h.T.Fatalf("unexpected conflict during drain: %+v", stats)
		}
		n, err := h.Store.CountPending()
		if err != nil {
			h.T.Fatalf("count pending: %v", err)
		}
		if n == 0 {
			return
		}
	}
	n, _ := h.Store.CountPending()
	h.T.Fatalf("queue did not drain: %d changes left", n)
}

// localIDs lists current entity ids of a type, reflecting any remapping.
func (h *Harness) localIDs(entityType models.EntityType, parentID string) []string {
	h.T.Helper()
	entities, err := h.Store.ListByParent(entityType, parentID)
	if err != nil {
		h.T.Fatalf("list %s under %q: %v", entityType, parentID, err)
	}
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

func (h *Harness) pick(ids []string) string {
	return ids[h.Rand.Intn(len(ids))]
}

// verifyConverged checks the local store and the remote hold the same
// entities with the same documents.
func (h *Harness) verifyConverged(ctx context.Context) {
	h.T.Helper()

	if n, _ := h.Store.CountPending(); n != 0 {
		h.T.Fatalf("pending changes after drain: %d", n)
	}

	local := 0
	for _, entityType := range []models.EntityType{models.EntityBase, models.EntityTable, models.EntityRecord} {
		entities := h.allEntities(entityType)
		local += len(entities)
		for _, e := range entities {
			if e.SyncStatus != models.StatusSynced {
				h.T.Errorf("%s %s not synced: %s", entityType, e.ID, e.SyncStatus)
			}
			snap, err := h.Remote.Get(ctx, entityType, e.ParentID, e.ID)
			if err != nil {
				h.T.Errorf("%s %s missing remotely: %v", entityType, e.ID, err)
				continue
			}
			if snap.Version != e.Version {
				h.T.Errorf("%s %s version: local %d, remote %d", entityType, e.ID, e.Version, snap.Version)
			}
			if !sameDocument(e.Data, snap.Data) {
				h.T.Errorf("%s %s diverged:\n local: %s\nremote: %s", entityType, e.ID, e.Data, snap.Data)
			}
		}
	}

	if remoteCount := h.Remote.snapshotCount(); remoteCount != local {
		h.T.Errorf("entity counts diverged: local %d, remote %d", local, remoteCount)
	}
}

// allEntities walks bases, their tables, and their records.
func (h *Harness) allEntities(entityType models.EntityType) []db.Entity {
	h.T.Helper()
	switch entityType {
	case models.EntityBase:
		return h.entitiesUnder(models.EntityBase, "")
	case models.EntityTable:
		var out []db.Entity
		for _, baseID := range h.localIDs(models.EntityBase, "") {
			out = append(out, h.entitiesUnder(models.EntityTable, baseID)...)
		}
		return out
	default:
		var out []db.Entity
		for _, baseID := range h.localIDs(models.EntityBase, "") {
			for _, tableID := range h.localIDs(models.EntityTable, baseID) {
				out = append(out, h.entitiesUnder(models.EntityRecord, tableID)...)
			}
		}
		return out
	}
}

func (h *Harness) entitiesUnder(entityType models.EntityType, parentID string) []db.Entity {
	h.T.Helper()
	entities, err := h.Store.ListByParent(entityType, parentID)
	if err != nil {
		h.T.Fatalf("list %s under %q: %v", entityType, parentID, err)
	}
	return entities
}

// sameDocument compares two JSON documents ignoring key order.
func sameDocument(a, b json.RawMessage) bool {
	var docA, docB map[string]any
	if json.Unmarshal(a, &docA) != nil || json.Unmarshal(b, &docB) != nil {
		return false
	}
	na, _ := json.Marshal(docA)
	nb, _ := json.Marshal(docB)
	return string(na) == string(nb)
}
