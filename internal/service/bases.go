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

// CreateBase creates a base on the server, or provisionally when offline.
func (s *Service) CreateBase(ctx context.Context, name, description string) (*models.Base, error) {
	doc := map[string]any{"name": name}
	if description != "" {
		doc["description"] = description
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	snap, err := s.api.Create(ctx, models.EntityBase, "", payload, newIdempotencyKey())
	if err == nil {
		if err := s.saveSnapshot(models.EntityBase, "", snap); err != nil {
			return nil, err
		}
		return baseFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	id, data, err := s.createOffline(models.EntityBase, "", doc)
	if err != nil {
		return nil, err
	}
	return baseFromLocal(id, data, models.StatusPending, 1)
}

// GetBase fetches a base, falling back to the local store when offline.
func (s *Service) GetBase(ctx context.Context, id string) (*models.Base, error) {
	if localOnly(id) {
		return s.getBaseLocal(id)
	}
	snap, err := s.api.Get(ctx, models.EntityBase, "", id)
	if err == nil {
		if err := s.saveSnapshot(models.EntityBase, "", snap); err != nil {
			return nil, err
		}
		return baseFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	return s.getBaseLocal(id)
}

func (s *Service) getBaseLocal(id string) (*models.Base, error) {
	entity, err := s.store.GetEntity(models.EntityBase, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("base %s: %w", id, remote.ErrNotFound)
	}
	return baseFromEntity(entity)
}

// ListBases lists bases, from the local store when offline.
func (s *Service) ListBases(ctx context.Context) ([]models.Base, error) {
	snaps, err := s.api.List(ctx, models.EntityBase, "")
	if err == nil {
		bases := make([]models.Base, 0, len(snaps))
		for i := range snaps {
			if err := s.saveSnapshot(models.EntityBase, "", &snaps[i]); err != nil {
				return nil, err
			}
			b, err := baseFromSnapshot(&snaps[i])
			if err != nil {
				return nil, err
			}
			bases = append(bases, *b)
		}
		return bases, nil
	}
	if !offline(err) {
		return nil, err
	}

	entities, lerr := s.store.ListByParent(models.EntityBase, "")
	if lerr != nil {
		return nil, lerr
	}
	bases := make([]models.Base, 0, len(entities))
	for i := range entities {
		b, err := baseFromEntity(&entities[i])
		if err != nil {
			return nil, err
		}
		bases = append(bases, *b)
	}
	return bases, nil
}

// UpdateBase patches a base remotely, or optimistically + queued when offline.
func (s *Service) UpdateBase(ctx context.Context, id string, patch map[string]any) (*models.Base, error) {
	if s.mustQueue(models.EntityBase, id) {
		entity, err := s.updateOffline(models.EntityBase, id, patch)
		if err != nil {
			return nil, err
		}
		return baseFromEntity(entity)
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	snap, err := s.api.Update(ctx, models.EntityBase, "", id, payload)
	if err == nil {
		if err := s.saveSnapshot(models.EntityBase, "", snap); err != nil {
			return nil, err
		}
		return baseFromSnapshot(snap)
	}
	if !offline(err) {
		return nil, err
	}

	entity, err := s.updateOffline(models.EntityBase, id, patch)
	if err != nil {
		return nil, err
	}
	return baseFromEntity(entity)
}

// DeleteBase deletes a base remotely, or queues the delete when offline.
func (s *Service) DeleteBase(ctx context.Context, id string) error {
	if s.mustQueue(models.EntityBase, id) {
		return s.deleteOffline(models.EntityBase, id, nil)
	}
	err := s.api.Delete(ctx, models.EntityBase, "", id)
	if err == nil || errors.Is(err, remote.ErrNotFound) {
		return s.store.DeleteEntity(models.EntityBase, id)
	}
	if !offline(err) {
		return err
	}
	return s.deleteOffline(models.EntityBase, id, nil)
}

func baseFromSnapshot(snap *remote.Snapshot) (*models.Base, error) {
	return baseFromLocal(snap.ID, snap.Data, models.StatusSynced, snap.Version)
}

func baseFromEntity(e *db.Entity) (*models.Base, error) {
	return baseFromLocal(e.ID, e.Data, e.SyncStatus, e.Version)
}

func baseFromLocal(id string, data []byte, status models.SyncStatus, version int64) (*models.Base, error) {
	var b models.Base
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode base %s: %w", id, err)
	}
	b.ID = id
	b.SyncStatus = status
	b.Version = version
	return &b, nil
}
