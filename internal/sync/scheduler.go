package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferris/airbase/internal/db"
	"github.com/ferris/airbase/internal/models"
	"github.com/ferris/airbase/internal/remote"
)

const (
	// DefaultInterval between timer-driven sync cycles.
	DefaultInterval = 5 * time.Minute
	// DefaultRetryLimit before a change is parked as failed.
	DefaultRetryLimit = 3
)

// Options configures the scheduler.
type Options struct {
	Interval   time.Duration
	RetryLimit int
	// Online overrides the reachability probe. Defaults to the remote
	// health endpoint.
	Online func(ctx context.Context) bool
}

// Scheduler drains the pending change queue against the remote authority.
// At most one drain cycle runs at a time; a cycle requested while another is
// in progress returns a zero-work result instead of queueing up.
type Scheduler struct {
	store      *db.DB
	api        remote.API
	interval   time.Duration
	retryLimit int
	online     func(ctx context.Context) bool

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	mu          sync.Mutex
	subscribers []chan models.Conflict
}

// New creates a scheduler over the given store and remote API.
func New(store *db.DB, api remote.API, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = DefaultRetryLimit
	}
	s := &Scheduler{
		store:      store,
		api:        api,
		interval:   opts.Interval,
		retryLimit: opts.RetryLimit,
		online:     opts.Online,
	}
	if s.online == nil {
		s.online = api.Healthy
	}
	return s
}

// Start launches the timer loop. Each tick triggers one drain cycle.
// Stopping only disables future ticks; an in-flight cycle runs to
// completion so no change is left half-applied.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.SyncNow(ctx); err != nil {
					slog.Debug("sync: timer cycle", "err", err)
				}
			}
		}
	}()
}

// Stop disables the timer loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// Subscribe returns a channel receiving conflicts as the scheduler detects
// them. Slow receivers miss notifications rather than stalling a cycle; the
// conflict log in the store is the durable record.
func (s *Scheduler) Subscribe() <-chan models.Conflict {
	ch := make(chan models.Conflict, 16)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Scheduler) notify(c models.Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- c:
		default:
		}
	}
}

// Status reports the scheduler's UI-facing state.
func (s *Scheduler) Status(ctx context.Context) (models.SyncStatusInfo, error) {
	pending, err := s.store.CountPending()
	if err != nil {
		return models.SyncStatusInfo{}, err
	}
	lastSync, err := s.store.LastSyncAt()
	if err != nil {
		return models.SyncStatusInfo{}, err
	}
	return models.SyncStatusInfo{
		IsOnline:       s.online(ctx),
		SyncInProgress: s.running.Load(),
		PendingChanges: pending,
		LastSyncTime:   lastSync,
	}, nil
}

// SyncNow runs one drain cycle. It returns immediately with zero work when
// offline or when another cycle is already running. Failures are per-change:
// one change erroring never aborts the rest of the cycle.
func (s *Scheduler) SyncNow(ctx context.Context) (models.SyncStats, error) {
	var stats models.SyncStats

	if !s.running.CompareAndSwap(false, true) {
		return stats, nil
	}
	defer s.running.Store(false)

	if !s.online(ctx) {
		return stats, nil
	}

	changes, err := s.store.ListPending()
	if err != nil {
		return stats, fmt.Errorf("list pending changes: %w", err)
	}
	stats.TotalPending = len(changes)

	// aliases maps provisional ids confirmed this cycle to their server ids.
	// The queue rows were rewritten durably on confirmation, but this
	// cycle's snapshot still carries the old ids.
	aliases := map[string]string{}
	// blocked entities had an earlier change fail or conflict this cycle;
	// their later changes are skipped to preserve per-entity FIFO order.
	blocked := map[string]bool{}

	for _, change := range changes {
		applyAliases(&change, aliases)
		key := string(change.EntityType) + "/" + change.EntityID

		if change.RetryCount >= s.retryLimit {
			// Parked until resolved manually. Later changes for the same
			// entity wait behind it; replaying them out of order would
			// re-create the entity from a partial payload.
			stats.Failed++
			blocked[key] = true
			continue
		}
		if blocked[key] {
			continue
		}

		outcome, err := s.apply(ctx, &change, aliases)
		switch {
		case err != nil:
			blocked[key] = true
			if s.handleChangeError(&change, err) {
				stats.Failed++
			}
		case outcome == VerdictConflict:
			blocked[key] = true
			stats.Conflicts++
		default:
			stats.Synced++
		}
	}

	now := time.Now().UTC()
	if err := s.store.SetLastSyncAt(now); err != nil {
		slog.Warn("sync: record last sync time", "err", err)
	}

	slog.Debug("sync: cycle complete",
		"pending", stats.TotalPending, "synced", stats.Synced,
		"failed", stats.Failed, "conflicts", stats.Conflicts)
	return stats, nil
}

// apply dispatches one change against the remote authority. A nil error with
// VerdictConflict means the change stays queued pending resolution.
func (s *Scheduler) apply(ctx context.Context, change *models.PendingChange, aliases map[string]string) (Verdict, error) {
	switch change.ChangeType {
	case models.ChangeCreate:
		return VerdictNoConflict, s.applyCreate(ctx, change, aliases)
	case models.ChangeUpdate:
		return s.applyUpdate(ctx, change)
	case models.ChangeDelete:
		return VerdictNoConflict, s.applyDelete(ctx, change)
	default:
		return VerdictNoConflict, fmt.Errorf("unknown change type %q", change.ChangeType)
	}
}

func (s *Scheduler) applyCreate(ctx context.Context, change *models.PendingChange, aliases map[string]string) error {
	snap, err := s.api.Create(ctx, change.EntityType, parentIDOf(change), createBody(change.Payload), change.IdempotencyKey)
	if err != nil {
		return err
	}
	if err := s.store.ConfirmCreate(change.EntityType, change.EntityID, snap.ID, snap.Data, snap.Version, change.ID); err != nil {
		return fmt.Errorf("confirm create: %w", err)
	}
	if change.EntityID != snap.ID {
		aliases[change.EntityID] = snap.ID
	}
	return nil
}

func (s *Scheduler) applyUpdate(ctx context.Context, change *models.PendingChange) (Verdict, error) {
	remoteSnap, err := s.api.Get(ctx, change.EntityType, parentIDOf(change), change.EntityID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return VerdictNoConflict, err
	}

	if errors.Is(err, remote.ErrNotFound) {
		// The server has no record of the entity, so there is nothing to
		// conflict with; resubmit the whole thing as a create.
		snap, err := s.api.Create(ctx, change.EntityType, parentIDOf(change), createBody(change.Payload), change.IdempotencyKey)
		if err != nil {
			return VerdictNoConflict, err
		}
		if err := s.store.ConfirmCreate(change.EntityType, change.EntityID, snap.ID, snap.Data, snap.Version, change.ID); err != nil {
			return VerdictNoConflict, fmt.Errorf("confirm recreate: %w", err)
		}
		return VerdictNoConflict, nil
	}

	if Detect(change.BaseVersion, change.Payload, remoteSnap) == VerdictConflict {
		conflict := models.Conflict{
			EntityType:     change.EntityType,
			EntityID:       change.EntityID,
			ChangeID:       change.ID,
			LocalSnapshot:  localSnapshotOf(s.store, change),
			RemoteSnapshot: remoteSnap.Data,
			DetectedAt:     time.Now().UTC(),
		}
		if err := s.store.RecordConflict(conflict); err != nil {
			slog.Warn("sync: record conflict", "entity", change.EntityID, "err", err)
		}
		s.notify(conflict)
		return VerdictConflict, nil
	}

	snap, err := s.api.Update(ctx, change.EntityType, parentIDOf(change), change.EntityID, change.Payload)
	if err != nil {
		return VerdictNoConflict, err
	}
	if err := s.store.ConfirmUpdate(change.EntityType, change.EntityID, snap.Data, snap.Version, change.ID); err != nil {
		return VerdictNoConflict, fmt.Errorf("confirm update: %w", err)
	}
	return VerdictNoConflict, nil
}

func (s *Scheduler) applyDelete(ctx context.Context, change *models.PendingChange) error {
	err := s.api.Delete(ctx, change.EntityType, parentIDOf(change), change.EntityID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		// Not-found is success: the entity is already gone remotely.
		return err
	}
	if err := s.store.ConfirmDelete(change.EntityType, change.EntityID, change.ID); err != nil {
		return fmt.Errorf("confirm delete: %w", err)
	}
	return nil
}

// handleChangeError classifies a per-change failure. Returns true when the
// change has been parked as failed (counted in stats), false when it stays
// queued for retry on a later cycle.
func (s *Scheduler) handleChangeError(change *models.PendingChange, err error) bool {
	if remote.IsRejection(err) {
		// The server rejected the change outright; retrying cannot help.
		if parkErr := s.store.ParkChange(change.ID, s.retryLimit, err.Error()); parkErr != nil {
			slog.Warn("sync: park rejected change", "change", change.ID, "err", parkErr)
		}
		s.markEntityFailed(change)
		slog.Debug("sync: change rejected", "change", change.ID, "err", err)
		return true
	}

	count, incErr := s.store.IncrementRetry(change.ID, err.Error())
	if incErr != nil {
		slog.Warn("sync: increment retry", "change", change.ID, "err", incErr)
		return false
	}
	slog.Debug("sync: change failed", "change", change.ID, "retry", count, "err", err)

	if count >= s.retryLimit {
		s.markEntityFailed(change)
		return true
	}
	return false
}

func (s *Scheduler) markEntityFailed(change *models.PendingChange) {
	if err := s.store.MarkFailed(change.EntityType, change.EntityID); err != nil {
		slog.Warn("sync: mark entity failed", "entity", change.EntityID, "err", err)
	}
}

// createBody strips the provisional id from a create payload before it goes
// to the server; real ids are the server's to assign.
func createBody(payload json.RawMessage) json.RawMessage {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload
	}
	id, ok := doc["id"].(string)
	if !ok || !db.IsProvisional(id) {
		return payload
	}
	delete(doc, "id")
	out, err := json.Marshal(doc)
	if err != nil {
		return payload
	}
	return out
}

// parentIDOf extracts the routing parent from a change payload. Only records
// are addressed under a parent; their payload always carries table_id.
func parentIDOf(change *models.PendingChange) string {
	if change.EntityType != models.EntityRecord {
		return ""
	}
	var doc struct {
		TableID string `json:"table_id"`
	}
	json.Unmarshal(change.Payload, &doc)
	return doc.TableID
}

// applyAliases repoints a change at server ids confirmed earlier in the same
// cycle, both the entity id itself and payload references to it.
func applyAliases(change *models.PendingChange, aliases map[string]string) {
	if len(aliases) == 0 {
		return
	}
	if newID, ok := aliases[change.EntityID]; ok {
		change.EntityID = newID
	}
	var doc map[string]any
	if err := json.Unmarshal(change.Payload, &doc); err != nil {
		return
	}
	changed := false
	for k, v := range doc {
		if s, ok := v.(string); ok {
			if newID, ok := aliases[s]; ok {
				doc[k] = newID
				changed = true
			}
		}
	}
	if changed {
		if out, err := json.Marshal(doc); err == nil {
			change.Payload = out
		}
	}
}

func localSnapshotOf(store *db.DB, change *models.PendingChange) json.RawMessage {
	entity, err := store.GetEntity(change.EntityType, change.EntityID)
	if err != nil || entity == nil {
		return change.Payload
	}
	return entity.Data
}
