package sync

import (
	"context"
	"fmt"

	"github.com/ferris/airbase/internal/models"
)

// Resolution operations for conflicted changes. Which side wins is the
// caller's decision; the scheduler only carries it out.

// AcceptLocal force-pushes a conflicted change, overwriting the remote edit,
// and clears the conflict log entry.
func (s *Scheduler) AcceptLocal(ctx context.Context, changeID int64) error {
	change, err := s.store.GetChange(changeID)
	if err != nil {
		return err
	}
	if change == nil {
		return fmt.Errorf("change %d not found", changeID)
	}

	snap, err := s.api.Update(ctx, change.EntityType, parentIDOf(change), change.EntityID, change.Payload)
	if err != nil {
		return fmt.Errorf("force push change %d: %w", changeID, err)
	}
	if err := s.store.ConfirmUpdate(change.EntityType, change.EntityID, snap.Data, snap.Version, change.ID); err != nil {
		return err
	}
	return s.store.ClearConflictsFor(changeID)
}

// AcceptRemote drops a conflicted change, overwrites the local snapshot with
// the server's, and clears the conflict log entry.
func (s *Scheduler) AcceptRemote(ctx context.Context, changeID int64) error {
	change, err := s.store.GetChange(changeID)
	if err != nil {
		return err
	}
	if change == nil {
		return fmt.Errorf("change %d not found", changeID)
	}

	snap, err := s.api.Get(ctx, change.EntityType, parentIDOf(change), change.EntityID)
	if err != nil {
		return fmt.Errorf("fetch remote snapshot: %w", err)
	}
	if err := s.store.ConfirmUpdate(change.EntityType, change.EntityID, snap.Data, snap.Version, change.ID); err != nil {
		return err
	}
	return s.store.ClearConflictsFor(changeID)
}

// Discard removes a queued change without applying it anywhere. The local
// entity keeps its optimistic state; callers wanting the server's version
// should use AcceptRemote instead.
func (s *Scheduler) Discard(changeID int64) error {
	if err := s.store.Remove(changeID); err != nil {
		return err
	}
	return s.store.ClearConflictsFor(changeID)
}

// Retry re-queues a failed change by resetting its retry counter and
// clearing the failed mark on its entity.
func (s *Scheduler) Retry(changeID int64) error {
	change, err := s.store.GetChange(changeID)
	if err != nil {
		return err
	}
	if change == nil {
		return fmt.Errorf("change %d not found", changeID)
	}
	if err := s.store.ResetRetry(changeID); err != nil {
		return err
	}
	entity, err := s.store.GetEntity(change.EntityType, change.EntityID)
	if err != nil {
		return err
	}
	if entity != nil && entity.SyncStatus == models.StatusFailed {
		entity.SyncStatus = models.StatusPending
		if err := s.store.SaveEntity(*entity); err != nil {
			return err
		}
	}
	return nil
}
