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

// CreateRecord creates a record in a table, provisionally when offline.
func (s *Service) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (*models.Record, error) {
	doc := map[string]any{"table_id": tableID, "fields": fields}
	if localOnly(tableID) {
		id, data, err := s.createOffline(models.EntityRecord, tableID, doc)
		if err != nil {
			return nil, err
		}
		return recordFromLocal(id, data, models.StatusPending, 1)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	snap, err := s.api.Create(ctx, models.EntityRecord, tableID, payload, newIdempotencyKey())
	if err == nil {
		if err := s.saveSnapshot(models.EntityRecord, tableID, snap); err != nil {
			return nil, err
		}
		return recordFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	id, data, err := s.createOffline(models.EntityRecord, tableID, doc)
	if err != nil {
		return nil, err
	}
	return recordFromLocal(id, data, models.StatusPending, 1)
}

// GetRecord fetches a record, falling back to the local store when offline.
func (s *Service) GetRecord(ctx context.Context, tableID, id string) (*models.Record, error) {
	if localOnly(tableID, id) {
		return s.getRecordLocal(id)
	}
	snap, err := s.api.Get(ctx, models.EntityRecord, tableID, id)
	if err == nil {
		if err := s.saveSnapshot(models.EntityRecord, tableID, snap); err != nil {
			return nil, err
		}
		return recordFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	return s.getRecordLocal(id)
}

func (s *Service) getRecordLocal(id string) (*models.Record, error) {
	entity, err := s.store.GetEntity(models.EntityRecord, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("record %s: %w", id, remote.ErrNotFound)
	}
	return recordFromEntity(entity)
}

// ListRecords lists a table's records, from the local store when offline.
func (s *Service) ListRecords(ctx context.Context, tableID string) ([]models.Record, error) {
	if localOnly(tableID) {
		return s.listRecordsLocal(tableID)
	}
	snaps, err := s.api.List(ctx, models.EntityRecord, tableID)
	if err == nil {
		records := make([]models.Record, 0, len(snaps))
		for i := range snaps {
			if err := s.saveSnapshot(models.EntityRecord, tableID, &snaps[i]); err != nil {
				return nil, err
			}
			r, err := recordFromSnapshot(&snaps[i])
			if err != nil {
				return nil, err
			}
			records = append(records, *r)
		}
		return records, nil
	}
	if !offline(err) {
		return nil, err
	}

	return s.listRecordsLocal(tableID)
}

func (s *Service) listRecordsLocal(tableID string) ([]models.Record, error) {
	entities, err := s.store.ListByParent(models.EntityRecord, tableID)
	if err != nil {
		return nil, err
	}
	records := make([]models.Record, 0, len(entities))
	for i := range entities {
		r, err := recordFromEntity(&entities[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, nil
}

// UpdateRecord patches a record's fields remotely, or optimistically +
// queued when offline. The queued payload carries the table id for routing.
func (s *Service) UpdateRecord(ctx context.Context, tableID, id string, fields map[string]any) (*models.Record, error) {
	patch := map[string]any{"table_id": tableID, "fields": fields}
	if s.mustQueue(models.EntityRecord, tableID, id) {
		entity, err := s.updateOffline(models.EntityRecord, id, patch)
		if err != nil {
			return nil, err
		}
		return recordFromEntity(entity)
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	snap, err := s.api.Update(ctx, models.EntityRecord, tableID, id, payload)
	if err == nil {
		if err := s.saveSnapshot(models.EntityRecord, tableID, snap); err != nil {
			return nil, err
		}
		return recordFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	entity, err := s.updateOffline(models.EntityRecord, id, patch)
	if err != nil {
		return nil, err
	}
	return recordFromEntity(entity)
}

// DeleteRecord deletes a record remotely, or queues the delete when offline.
func (s *Service) DeleteRecord(ctx context.Context, tableID, id string) error {
	if s.mustQueue(models.EntityRecord, tableID, id) {
		payload, _ := json.Marshal(map[string]any{"table_id": tableID})
		return s.deleteOffline(models.EntityRecord, id, payload)
	}
	err := s.api.Delete(ctx, models.EntityRecord, tableID, id)
	if err == nil || errors.Is(err, remote.ErrNotFound) {
		return s.store.DeleteEntity(models.EntityRecord, id)
	}
	if !offline(err) {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"table_id": tableID})
	return s.deleteOffline(models.EntityRecord, id, payload)
}

func recordFromSnapshot(snap *remote.Snapshot) (*models.Record, error) {
	return recordFromLocal(snap.ID, snap.Data, models.StatusSynced, snap.Version)
}

func recordFromEntity(e *db.Entity) (*models.Record, error) {
	return recordFromLocal(e.ID, e.Data, e.SyncStatus, e.Version)
}

func recordFromLocal(id string, data []byte, status models.SyncStatus, version int64) (*models.Record, error) {
	var r models.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	r.ID = id
	r.SyncStatus = status
	r.Version = version
	return &r, nil
}
