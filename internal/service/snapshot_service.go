package service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/repository"
	"github.com/limbo/cadence/pkg/entity"
)

const (
	// Oldest snapshots beyond this count are evicted on every capture.
	maxSnapshots = 10
	snapshotTTL  = 30 * 24 * time.Hour
)

type SnapshotManager struct {
	snaps  repository.SnapshotsRepositoryI
	events repository.EventsRepositoryI
	locks  *UserLocks
}

// NewSnapshotManager takes the same UserLocks instance the events service
// uses, so reverts and event mutations for one user never interleave.
func NewSnapshotManager(snapsRepo repository.SnapshotsRepositoryI, eventsRepo repository.EventsRepositoryI, locks *UserLocks) *SnapshotManager {
	if snapsRepo == nil || eventsRepo == nil || locks == nil {
		log.Fatal("on snapshot manager provided nil dependencies")
	}
	return &SnapshotManager{
		snaps:  snapsRepo,
		events: eventsRepo,
		locks:  locks,
	}
}

// Capture runs inside the caller's user lock and must not take it again.
func (sm *SnapshotManager) Capture(ctx context.Context, uid uuid.UUID, trigger string, changes []entity.EventChange) (*entity.Snapshot, error) {
	if len(changes) == 0 {
		return nil, errors.New("snapshot with no changes")
	}
	now := time.Now().UTC()
	snap := &entity.Snapshot{
		ID:        uuid.New(),
		UserID:    uid,
		Trigger:   trigger,
		Changes:   changes,
		CreatedAt: now,
		ExpiresAt: now.Add(snapshotTTL),
	}
	if err := sm.snaps.Create(ctx, snap); err != nil {
		return nil, errors.New("snapshots repository error: " + err.Error())
	}
	if err := sm.snaps.DeleteOldest(ctx, uid, maxSnapshots); err != nil {
		// Retention is housekeeping, the captured unit of work stands.
		slog.Warn("snapshot retention cleanup failed", slog.String("error", err.Error()))
	}
	return snap, nil
}

func (sm *SnapshotManager) List(ctx context.Context, uid uuid.UUID, pagination PaginationOpts) ([]*entity.Snapshot, error) {
	snaps, err := sm.snaps.GetByUserID(ctx, uid, pagination.Limit, pagination.Offset)
	if err != nil {
		return nil, errors.New("snapshots repository error: " + err.Error())
	}
	return snaps, nil
}

// Revert restores every before-state of the snapshot in reverse order. It
// stages all inverse operations first, validates each can be applied, and
// only then writes the whole batch in one transaction. Either all land or
// the original state stays fully intact.
func (sm *SnapshotManager) Revert(ctx context.Context, snapshotID, uid uuid.UUID) ([]uuid.UUID, error) {
	unlock := sm.locks.Lock(uid)
	defer unlock()
	return sm.revert(ctx, snapshotID, uid)
}

// revert expects the caller to hold the user lock.
func (sm *SnapshotManager) revert(ctx context.Context, snapshotID, uid uuid.UUID) ([]uuid.UUID, error) {
	snap, err := sm.snaps.GetByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, errorvalues.ErrSnapshotNotFound) {
			return nil, err
		}
		return nil, errors.New("snapshots repository error: " + err.Error())
	}
	if snap.UserID != uid {
		return nil, errorvalues.ErrWrongOwner
	}
	if snap.IsReverted {
		return nil, errorvalues.ErrSnapshotAlreadyReverted
	}
	if time.Now().After(snap.ExpiresAt) {
		return nil, errorvalues.ErrSnapshotExpired
	}

	ops := make([]repository.RevertOp, 0, len(snap.Changes))
	restored := make([]uuid.UUID, 0, len(snap.Changes))
	for i := len(snap.Changes) - 1; i >= 0; i-- {
		change := snap.Changes[i]
		switch change.Action {
		case entity.ActionCreate:
			// Undone by deleting; the event must still exist.
			if _, err := sm.events.GetByID(ctx, change.EventID); err != nil {
				if errors.Is(err, errorvalues.ErrEventNotFound) {
					return nil, errorvalues.ErrRevertFailed
				}
				return nil, errors.New("events repository error: " + err.Error())
			}
			ops = append(ops, repository.RevertOp{Kind: "delete", EventID: change.EventID})
		case entity.ActionUpdate, entity.ActionDelete:
			if change.Before == nil {
				return nil, errorvalues.ErrRevertFailed
			}
			ops = append(ops, repository.RevertOp{Kind: "restore", EventID: change.EventID, State: change.Before})
			restored = append(restored, change.EventID)
		default:
			return nil, errorvalues.ErrRevertFailed
		}
	}

	if err := sm.events.ApplyRevert(ctx, ops); err != nil {
		if errors.Is(err, errorvalues.ErrRevertFailed) {
			return nil, err
		}
		return nil, errors.New("applying revert error: " + err.Error())
	}
	if err := sm.snaps.MarkReverted(ctx, snap.ID, time.Now().UTC()); err != nil {
		return nil, errors.New("snapshots repository error: " + err.Error())
	}
	return restored, nil
}

func (sm *SnapshotManager) UndoLast(ctx context.Context, uid uuid.UUID) ([]uuid.UUID, error) {
	unlock := sm.locks.Lock(uid)
	defer unlock()
	snap, err := sm.snaps.GetLatestActive(ctx, uid)
	if err != nil {
		if errors.Is(err, errorvalues.ErrSnapshotNotFound) {
			return nil, err
		}
		return nil, errors.New("snapshots repository error: " + err.Error())
	}
	return sm.revert(ctx, snap.ID, uid)
}
