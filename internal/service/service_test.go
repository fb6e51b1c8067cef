package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/remote"
)

func setupService(t *testing.T, api remote.API) (*Service, *db.DB) {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	database, err := db.OpenConn(conn)
	if err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return New(database, api), database
}

// stubAPI scripts one response for every call. A set err wins; otherwise the
// canned snapshot(s) are returned.
type stubAPI struct {
	err   error
	snap  *remote.Snapshot
	snaps []remote.Snapshot

	lastIdemKey string
	lastPayload json.RawMessage
}

func (s *stubAPI) Create(ctx context.Context, entityType models.EntityType, parentID string, payload json.RawMessage, idempotencyKey string) (*remote.Snapshot, error) {
	s.lastIdemKey = idempotencyKey
	s.lastPayload = payload
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *stubAPI) Get(ctx context.Context, entityType models.EntityType, parentID, id string) (*remote.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *stubAPI) List(ctx context.Context, entityType models.EntityType, parentID string) ([]remote.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snaps, nil
}

func (s *stubAPI) Update(ctx context.Context, entityType models.EntityType, parentID, id string, payload json.RawMessage) (*remote.Snapshot, error) {
	s.lastPayload = payload
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *stubAPI) Delete(ctx context.Context, entityType models.EntityType, parentID, id string) error {
	return s.err
}

func (s *stubAPI) Healthy(ctx context.Context) bool {
	return s.err == nil
}

var _ remote.API = (*stubAPI)(nil)

func TestCreateBaseOnline(t *testing.T) {
	api := &stubAPI{snap: &remote.Snapshot{
		ID: "base-1", Version: 1,
		Data: json.RawMessage(`{"id":"base-1","name":"crm"}`),
	}}
	svc, database := setupService(t, api)

	base, err := svc.CreateBase(context.Background(), "crm", "")
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	if base.ID != "base-1" {
		t.Errorf("id: got %s, want base-1", base.ID)
	}
	if base.SyncStatus != models.StatusSynced {
		t.Errorf("status: got %s, want synced", base.SyncStatus)
	}
	if api.lastIdemKey == "" {
		t.Error("create should carry an idempotency key")
	}

	// Written through locally, nothing queued.
	entity, _ := database.GetEntity(models.EntityBase, "base-1")
	if entity == nil || entity.SyncStatus != models.StatusSynced {
		t.Fatalf("write-through entity: %+v", entity)
	}
	if n, _ := database.CountPending(); n != 0 {
		t.Fatalf("pending: got %d, want 0", n)
	}
}

func TestCreateBaseOffline(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	base, err := svc.CreateBase(context.Background(), "crm", "pipeline")
	if err != nil {
		t.Fatalf("create base offline: %v", err)
	}
	if !db.IsProvisional(base.ID) {
		t.Errorf("id %q should be provisional", base.ID)
	}
	if base.SyncStatus != models.StatusPending {
		t.Errorf("status: got %s, want pending", base.SyncStatus)
	}
	if base.Name != "crm" {
		t.Errorf("name: got %q", base.Name)
	}

	changes, _ := database.ListPending()
	if len(changes) != 1 {
		t.Fatalf("pending: got %d, want 1", len(changes))
	}
	if changes[0].ChangeType != models.ChangeCreate || changes[0].EntityID != base.ID {
		t.Fatalf("queued change: %+v", changes[0])
	}
	if changes[0].IdempotencyKey == "" {
		t.Error("queued create should have an idempotency key")
	}
}

func TestCreateBaseRejectionNeverQueued(t *testing.T) {
	api := &stubAPI{err: fmt.Errorf("%w: name taken", remote.ErrValidation)}
	svc, database := setupService(t, api)

	_, err := svc.CreateBase(context.Background(), "crm", "")
	if !errors.Is(err, remote.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}

	if n, _ := database.CountPending(); n != 0 {
		t.Fatalf("rejection must not queue, pending %d", n)
	}
	entities, _ := database.ListByParent(models.EntityBase, "")
	if len(entities) != 0 {
		t.Fatalf("rejection must not persist, entities %d", len(entities))
	}
}

func TestGetBaseOfflineFallsBack(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	database.SaveEntity(db.Entity{
		Type: models.EntityBase, ID: "base-1",
		Data:       json.RawMessage(`{"id":"base-1","name":"crm"}`),
		SyncStatus: models.StatusSynced, Version: 4,
	})

	base, err := svc.GetBase(context.Background(), "base-1")
	if err != nil {
		t.Fatalf("get base offline: %v", err)
	}
	if base.Name != "crm" || base.Version != 4 {
		t.Fatalf("base from store: %+v", base)
	}

	_, err = svc.GetBase(context.Background(), "missing")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("want not-found for absent entity, got %v", err)
	}
}

func TestUpdateRecordOfflineMergesFields(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	database.SaveEntity(db.Entity{
		Type: models.EntityRecord, ID: "rec-1", ParentID: "tbl-1",
		Data:       json.RawMessage(`{"id":"rec-1","table_id":"tbl-1","fields":{"a":1,"b":2}}`),
		SyncStatus: models.StatusSynced, Version: 2,
	})

	rec, err := svc.UpdateRecord(context.Background(), "tbl-1", "rec-1", map[string]any{"a": 9})
	if err != nil {
		t.Fatalf("update record offline: %v", err)
	}
	if rec.SyncStatus != models.StatusPending {
		t.Errorf("status: got %s, want pending", rec.SyncStatus)
	}
	if rec.Version != 3 {
		t.Errorf("version: got %d, want 3", rec.Version)
	}
	if rec.Fields["a"] != float64(9) || rec.Fields["b"] != float64(2) {
		t.Errorf("fields not merged: %v", rec.Fields)
	}

	changes, _ := database.ListPending()
	if len(changes) != 1 {
		t.Fatalf("pending: got %d, want 1", len(changes))
	}
	if changes[0].BaseVersion != 2 {
		t.Errorf("base version: got %d, want 2", changes[0].BaseVersion)
	}
	if !strings.Contains(string(changes[0].Payload), `"table_id":"tbl-1"`) {
		t.Errorf("payload should carry table_id: %s", changes[0].Payload)
	}
}

func TestDeleteRecordOfflineCollapsesUnsynced(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	rec, err := svc.CreateRecord(context.Background(), "tbl-1", map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("create record offline: %v", err)
	}

	if err := svc.DeleteRecord(context.Background(), "tbl-1", rec.ID); err != nil {
		t.Fatalf("delete record offline: %v", err)
	}

	if n, _ := database.CountPending(); n != 0 {
		t.Fatalf("create+delete should collapse, pending %d", n)
	}
	if e, _ := database.GetEntity(models.EntityRecord, rec.ID); e != nil {
		t.Fatal("local snapshot should be removed")
	}
}

func TestDeleteBaseOfflineKeepsSnapshotPending(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	database.SaveEntity(db.Entity{
		Type: models.EntityBase, ID: "base-1",
		Data:       json.RawMessage(`{"id":"base-1","name":"crm"}`),
		SyncStatus: models.StatusSynced, Version: 1,
	})

	if err := svc.DeleteBase(context.Background(), "base-1"); err != nil {
		t.Fatalf("delete base offline: %v", err)
	}

	changes, _ := database.ListPending()
	if len(changes) != 1 || changes[0].ChangeType != models.ChangeDelete {
		t.Fatalf("queued change: %+v", changes)
	}
	e, _ := database.GetEntity(models.EntityBase, "base-1")
	if e == nil || e.SyncStatus != models.StatusPending {
		t.Fatalf("snapshot should stay pending until confirmed: %+v", e)
	}
}

func TestUpdateQueuesBehindPendingChange(t *testing.T) {
	// The server is reachable, but the base already has a queued update.
	// Sending the new patch directly would land it ahead of the queued one,
	// so it has to take the offline path too.
	api := &stubAPI{snap: &remote.Snapshot{
		ID: "base-1", Version: 9,
		Data: json.RawMessage(`{"id":"base-1","name":"remote wins"}`),
	}}
	svc, database := setupService(t, api)

	database.SaveEntity(db.Entity{
		Type: models.EntityBase, ID: "base-1",
		Data:       json.RawMessage(`{"id":"base-1","name":"crm"}`),
		SyncStatus: models.StatusPending, Version: 2,
	})
	if _, err := database.Enqueue(models.ChangeUpdate, models.EntityBase, "base-1",
		json.RawMessage(`{"name":"crm"}`), 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	base, err := svc.UpdateBase(context.Background(), "base-1", map[string]any{"name": "crm 2"})
	if err != nil {
		t.Fatalf("update base: %v", err)
	}
	if base.Name != "crm 2" {
		t.Errorf("name: got %q, want local patch applied", base.Name)
	}
	if n, _ := database.CountPending(); n != 2 {
		t.Fatalf("pending: got %d, want 2", n)
	}
}

func TestUpdateAfterQueuedDeleteFails(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	database.SaveEntity(db.Entity{
		Type: models.EntityBase, ID: "base-1",
		Data:       json.RawMessage(`{"id":"base-1","name":"crm"}`),
		SyncStatus: models.StatusSynced, Version: 1,
	})
	if err := svc.DeleteBase(context.Background(), "base-1"); err != nil {
		t.Fatalf("delete base offline: %v", err)
	}

	_, err := svc.UpdateBase(context.Background(), "base-1", map[string]any{"name": "zombie"})
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("update after queued delete: got %v, want not-found", err)
	}
}

func TestGetDoesNotClobberPendingState(t *testing.T) {
	api := &stubAPI{snap: &remote.Snapshot{
		ID: "base-1", Version: 7,
		Data: json.RawMessage(`{"id":"base-1","name":"remote"}`),
	}}
	svc, database := setupService(t, api)

	database.SaveEntity(db.Entity{
		Type: models.EntityBase, ID: "base-1",
		Data:       json.RawMessage(`{"id":"base-1","name":"local edit"}`),
		SyncStatus: models.StatusPending, Version: 2,
	})

	if _, err := svc.GetBase(context.Background(), "base-1"); err != nil {
		t.Fatalf("get base: %v", err)
	}

	e, _ := database.GetEntity(models.EntityBase, "base-1")
	if e == nil || e.SyncStatus != models.StatusPending || e.Version != 2 {
		t.Fatalf("write-through clobbered pending state: %+v", e)
	}
}

func TestListRecordsOffline(t *testing.T) {
	api := &stubAPI{err: remote.ErrUnreachable}
	svc, database := setupService(t, api)

	for i, id := range []string{"rec-1", "rec-2"} {
		database.SaveEntity(db.Entity{
			Type: models.EntityRecord, ID: id, ParentID: "tbl-1",
			Data:       json.RawMessage(fmt.Sprintf(`{"id":%q,"table_id":"tbl-1","fields":{"n":%d}}`, id, i)),
			SyncStatus: models.StatusSynced, Version: 1,
		})
	}

	records, err := svc.ListRecords(context.Background(), "tbl-1")
	if err != nil {
		t.Fatalf("list records offline: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if records[0].ID != "rec-1" || records[1].ID != "rec-2" {
		t.Fatalf("order: %s, %s", records[0].ID, records[1].ID)
	}
}

func TestMergePatchNested(t *testing.T) {
	doc := map[string]any{
		"name":   "tasks",
		"fields": map[string]any{"a": 1, "b": 2},
	}
	mergePatch(doc, map[string]any{
		"fields": map[string]any{"b": 3, "c": 4},
	})

	fields := doc["fields"].(map[string]any)
	if fields["a"] != 1 || fields["b"] != 3 || fields["c"] != 4 {
		t.Fatalf("merged fields: %v", fields)
	}
	if doc["name"] != "tasks" {
		t.Fatalf("untouched key changed: %v", doc["name"])
	}
}
