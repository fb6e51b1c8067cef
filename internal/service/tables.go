package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/remote"
)

// CreateTable creates a table in a base, provisionally when offline. The
// base id may itself still be provisional; the queue rewrite repoints it
// once the base's create is confirmed.
func (s *Service) CreateTable(ctx context.Context, baseID, name, description string) (*models.Table, error) {
	doc := map[string]any{"base_id": baseID, "name": name}
	if description != "" {
		doc["description"] = description
	}
	if localOnly(baseID) {
		id, data, err := s.createOffline(models.EntityTable, baseID, doc)
		if err != nil {
			return nil, err
		}
		return tableFromLocal(id, data, models.StatusPending, 1)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	snap, err := s.api.Create(ctx, models.EntityTable, baseID, payload, newIdempotencyKey())
	if err == nil {
		if err := s.saveSnapshot(models.EntityTable, baseID, snap); err != nil {
			return nil, err
		}
		return tableFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	id, data, err := s.createOffline(models.EntityTable, baseID, doc)
	if err != nil {
		return nil, err
	}
	return tableFromLocal(id, data, models.StatusPending, 1)
}

// GetTable fetches a table, falling back to the local store when offline.
func (s *Service) GetTable(ctx context.Context, id string) (*models.Table, error) {
	if localOnly(id) {
		return s.getTableLocal(id)
	}
	snap, err := s.api.Get(ctx, models.EntityTable, "", id)
	if err == nil {
		t, terr := tableFromSnapshot(snap)
		if terr != nil {
			return nil, terr
		}
		if err := s.saveSnapshot(models.EntityTable, t.BaseID, snap); err != nil {
			return nil, err
		}
		return t, nil
	}
	if !offline(err) {
		return nil, err
	}

	return s.getTableLocal(id)
}

func (s *Service) getTableLocal(id string) (*models.Table, error) {
	entity, err := s.store.GetEntity(models.EntityTable, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("table %s: %w", id, remote.ErrNotFound)
	}
	return tableFromEntity(entity)
}

// ListTables lists a base's tables, from the local store when offline.
func (s *Service) ListTables(ctx context.Context, baseID string) ([]models.Table, error) {
	if localOnly(baseID) {
		return s.listTablesLocal(baseID)
	}
	snaps, err := s.api.List(ctx, models.EntityTable, baseID)
	if err == nil {
		tables := make([]models.Table, 0, len(snaps))
		for i := range snaps {
			if err := s.saveSnapshot(models.EntityTable, baseID, &snaps[i]); err != nil {
				return nil, err
			}
			t, err := tableFromSnapshot(&snaps[i])
			if err != nil {
				return nil, err
			}
			tables = append(tables, *t)
		}
		return tables, nil
	}
	if !offline(err) {
		return nil, err
	}

	return s.listTablesLocal(baseID)
}

func (s *Service) listTablesLocal(baseID string) ([]models.Table, error) {
	entities, err := s.store.ListByParent(models.EntityTable, baseID)
	if err != nil {
		return nil, err
	}
	tables := make([]models.Table, 0, len(entities))
	for i := range entities {
		t, err := tableFromEntity(&entities[i])
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// UpdateTable patches a table remotely, or optimistically + queued offline.
func (s *Service) UpdateTable(ctx context.Context, id string, patch map[string]any) (*models.Table, error) {
	if s.mustQueue(models.EntityTable, id) {
		entity, err := s.updateOffline(models.EntityTable, id, patch)
		if err != nil {
			return nil, err
		}
		return tableFromEntity(entity)
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	snap, err := s.api.Update(ctx, models.EntityTable, "", id, payload)
	if err == nil {
		t, terr := tableFromSnapshot(snap)
		if terr != nil {
			return nil, terr
		}
		if err := s.saveSnapshot(models.EntityTable, t.BaseID, snap); err != nil {
			return nil, err
		}
		return t, nil
	}
	if !offline(err) {
		return nil, err
	}

	entity, err := s.updateOffline(models.EntityTable, id, patch)
	if err != nil {
		return nil, err
	}
	return tableFromEntity(entity)
}

// DeleteTable deletes a table remotely, or queues the delete when offline.
func (s *Service) DeleteTable(ctx context.Context, id string) error {
	if s.mustQueue(models.EntityTable, id) {
		return s.deleteOffline(models.EntityTable, id, nil)
	}
	err := s.api.Delete(ctx, models.EntityTable, "", id)
	if err == nil || errors.Is(err, remote.ErrNotFound) {
		return s.store.DeleteEntity(models.EntityTable, id)
	}
	if !offline(err) {
		return err
	}
	return s.deleteOffline(models.EntityTable, id, nil)
}

func tableFromSnapshot(snap *remote.Snapshot) (*models.Table, error) {
	return tableFromLocal(snap.ID, snap.Data, models.StatusSynced, snap.Version)
}

func tableFromEntity(e *db.Entity) (*models.Table, error) {
	return tableFromLocal(e.ID, e.Data, e.SyncStatus, e.Version)
}

func tableFromLocal(id string, data []byte, status models.SyncStatus, version int64) (*models.Table, error) {
	var t models.Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", id, err)
	}
	t.ID = id
	t.SyncStatus = status
	t.Version = version
	return &t, nil
}
