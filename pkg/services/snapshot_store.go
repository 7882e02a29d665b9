package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// SnapshotPersister is the durable backend behind the in-memory store. It is
// optional: without one the store is memory-only (CLI and tests).
type SnapshotPersister interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Latest(ctx context.Context, requestID uuid.UUID) (*models.Snapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SnapshotStore keeps the most recent snapshot per request id so a later
// correction can re-plan against it. Reads and replacements are atomic per
// key; entries expire after the configured TTL.
type SnapshotStore interface {
	// Save records the snapshot as the latest for its request id.
	Save(ctx context.Context, snap *models.Snapshot) error

	// Latest returns the live snapshot for the request id, or
	// apperrors.ErrSnapshotNotFound when it is unknown or expired.
	Latest(ctx context.Context, requestID uuid.UUID) (*models.Snapshot, error)

	// Supersede atomically replaces the live snapshot for the request id.
	// The id must already have a live snapshot.
	Supersede(ctx context.Context, requestID uuid.UUID, snap *models.Snapshot) error

	// Stop halts the background eviction sweep.
	Stop()
}

type snapshotEntry struct {
	snap      *models.Snapshot
	expiresAt time.Time
}

type snapshotStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]snapshotEntry

	ttl     time.Duration
	maxSize int
	repo    SnapshotPersister
	logger  *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ SnapshotStore = (*snapshotStore)(nil)

const sweepInterval = time.Minute

// NewSnapshotStore builds the store and starts its eviction sweeper. repo may
// be nil for a memory-only store.
func NewSnapshotStore(cfg config.FeedbackConfig, repo SnapshotPersister, logger *zap.Logger) SnapshotStore {
	ttl := time.Duration(cfg.SnapshotTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxSize := cfg.SnapshotCacheSize
	if maxSize <= 0 {
		maxSize = 512
	}

	s := &snapshotStore{
		entries: make(map[uuid.UUID]snapshotEntry),
		ttl:     ttl,
		maxSize: maxSize,
		repo:    repo,
		logger:  logger.Named("snapshots"),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *snapshotStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil || snap.RequestID == uuid.Nil {
		return fmt.Errorf("failed to save snapshot: missing request id")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	s.mu.Lock()
	if len(s.entries) >= s.maxSize {
		s.evictLocked()
	}
	s.entries[snap.RequestID] = snapshotEntry{snap: snap, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	s.persist(ctx, snap)
	return nil
}

func (s *snapshotStore) Latest(ctx context.Context, requestID uuid.UUID) (*models.Snapshot, error) {
	s.mu.Lock()
	e, ok := s.entries[requestID]
	if ok && time.Now().After(e.expiresAt) {
		delete(s.entries, requestID)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return e.snap, nil
	}

	if s.repo != nil {
		snap, err := s.repo.Latest(ctx, requestID)
		if err == nil && snap != nil && time.Since(snap.CreatedAt) < s.ttl {
			s.mu.Lock()
			s.entries[requestID] = snapshotEntry{snap: snap, expiresAt: snap.CreatedAt.Add(s.ttl)}
			s.mu.Unlock()
			return snap, nil
		}
	}
	return nil, apperrors.ErrSnapshotNotFound
}

func (s *snapshotStore) Supersede(ctx context.Context, requestID uuid.UUID, snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("failed to supersede snapshot: nil snapshot")
	}
	snap.RequestID = requestID
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	s.mu.Lock()
	e, ok := s.entries[requestID]
	if ok && time.Now().After(e.expiresAt) {
		delete(s.entries, requestID)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrSnapshotNotFound
	}
	s.entries[requestID] = snapshotEntry{snap: snap, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	s.persist(ctx, snap)
	return nil
}

func (s *snapshotStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// persist writes through to the repository. Persistence failure is logged,
// not propagated: the in-memory answer path stays available.
func (s *snapshotStore) persist(ctx context.Context, snap *models.Snapshot) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		s.logger.Warn("failed to persist snapshot",
			zap.String("request_id", snap.RequestID.String()),
			zap.Error(err))
	}
}

func (s *snapshotStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *snapshotStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug("evicted expired snapshots", zap.Int("count", removed))
	}

	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n, err := s.repo.DeleteOlderThan(ctx, now.Add(-s.ttl)); err != nil {
			s.logger.Warn("failed to prune persisted snapshots", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("pruned persisted snapshots", zap.Int64("count", n))
		}
	}
}

// evictLocked drops expired entries first, then the oldest live ones until a
// slot is free. Callers hold mu.
func (s *snapshotStore) evictLocked() {
	now := time.Now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	for len(s.entries) >= s.maxSize {
		var oldestID uuid.UUID
		var oldest time.Time
		first := true
		for id, e := range s.entries {
			if first || e.expiresAt.Before(oldest) {
				oldestID, oldest, first = id, e.expiresAt, false
			}
		}
		delete(s.entries, oldestID)
	}
}
