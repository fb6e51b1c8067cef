// Package service implements the entity write path: every operation attempts
// the remote authority first and writes through to the local store, falling
// back to a provisional local entity plus a queued change when the server is
// unreachable. Validation and authorization errors propagate immediately and
// are never queued.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/remote"
)

// Service exposes create/read/list/update/delete per entity type.
type Service struct {
	store *db.DB
	api   remote.API
}

// New creates the entity service over the local store and remote API.
func New(store *db.DB, api remote.API) *Service {
	return &Service{store: store, api: api}
}

// offline reports whether the error means the server could not be reached,
// i.e. the operation should fall back to the queue. Rejections (validation,
// auth) are not offline: they surface to the caller untouched.
func offline(err error) bool {
	return errors.Is(err, remote.ErrUnreachable)
}

// localOnly reports whether an operation must bypass the remote: the server
// has never seen a provisional id, so sending one is meaningless. Such
// operations queue behind the entity's create and replay after it confirms.
func localOnly(ids ...string) bool {
	for _, id := range ids {
		if db.IsProvisional(id) {
			return true
		}
	}
	return false
}

// mustQueue reports whether a mutation has to take the offline path even when
// the server is reachable: the id is provisional, or earlier changes for the
// entity are still queued and a direct call would jump ahead of them.
func (s *Service) mustQueue(entityType models.EntityType, ids ...string) bool {
	if localOnly(ids...) {
		return true
	}
	queued, err := s.store.HasQueuedChanges(entityType, ids[len(ids)-1])
	if err != nil {
		return false
	}
	return queued
}

// saveSnapshot writes a confirmed server snapshot through to the local store.
// A local entity with unconfirmed changes is left alone; the queue drain is
// what reconciles it.
func (s *Service) saveSnapshot(entityType models.EntityType, parentID string, snap *remote.Snapshot) error {
	existing, err := s.store.GetEntity(entityType, snap.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.SyncStatus != models.StatusSynced {
		return nil
	}
	return s.store.SaveEntity(db.Entity{
		Type:       entityType,
		ID:         snap.ID,
		ParentID:   parentID,
		Data:       snap.Data,
		SyncStatus: models.StatusSynced,
		Version:    snap.Version,
	})
}

// createOffline persists a provisional entity and queues its create.
func (s *Service) createOffline(entityType models.EntityType, parentID string, doc map[string]any) (string, json.RawMessage, error) {
	id, err := db.NewProvisionalID()
	if err != nil {
		return "", nil, fmt.Errorf("generate provisional id: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	doc["id"] = id
	doc["created_at"] = now
	doc["updated_at"] = now
	data, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("marshal provisional entity: %w", err)
	}

	if err := s.store.SaveEntity(db.Entity{
		Type:       entityType,
		ID:         id,
		ParentID:   parentID,
		Data:       data,
		SyncStatus: models.StatusPending,
		Version:    1,
	}); err != nil {
		return "", nil, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", nil, err
	}
	if _, err := s.store.Enqueue(models.ChangeCreate, entityType, id, payload, 0); err != nil {
		return "", nil, err
	}
	return id, data, nil
}

// updateOffline merges the patch into the local snapshot, bumps the local
// version, and queues the update based on the pre-mutation version.
func (s *Service) updateOffline(entityType models.EntityType, id string, patch map[string]any) (*db.Entity, error) {
	entity, err := s.store.GetEntity(entityType, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, remote.ErrNotFound)
	}
	if deleting, err := s.store.HasQueuedDelete(entityType, id); err != nil {
		return nil, err
	} else if deleting {
		return nil, fmt.Errorf("%s %s is pending deletion: %w", entityType, id, remote.ErrNotFound)
	}

	var doc map[string]any
	if err := json.Unmarshal(entity.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode local %s/%s: %w", entityType, id, err)
	}
	mergePatch(doc, patch)
	doc["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	baseVersion := entity.Version
	entity.Data = data
	entity.Version = baseVersion + 1
	entity.SyncStatus = models.StatusPending
	if err := s.store.SaveEntity(*entity); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Enqueue(models.ChangeUpdate, entityType, id, payload, baseVersion); err != nil {
		return nil, err
	}
	return entity, nil
}

// deleteOffline queues a delete. When the entity's create was still queued
// the two collapse to nothing and the local snapshot is removed outright;
// otherwise the snapshot stays pending until the delete is confirmed.
func (s *Service) deleteOffline(entityType models.EntityType, id string, payload json.RawMessage) error {
	change, err := s.store.Enqueue(models.ChangeDelete, entityType, id, payload, 0)
	if err != nil {
		return err
	}
	if change == nil {
		// Never synced: create cancelled, nothing for the server to see.
		return s.store.DeleteEntity(entityType, id)
	}
	// The snapshot stays until the delete is confirmed remotely.
	return s.store.MarkPending(entityType, id)
}

// mergePatch applies patch keys over doc. Nested objects merge one level
// deep so a partial fields update keeps untouched record fields.
func mergePatch(doc, patch map[string]any) {
	for k, v := range patch {
		patchMap, patchIsMap := v.(map[string]any)
		docMap, docIsMap := doc[k].(map[string]any)
		if patchIsMap && docIsMap {
			for fk, fv := range patchMap {
				docMap[fk] = fv
			}
			continue
		}
		doc[k] = v
	}
}

// newIdempotencyKey tags direct creates so a client retry after a dropped
// response cannot duplicate the entity.
func newIdempotencyKey() string {
	return uuid.NewString()
}
