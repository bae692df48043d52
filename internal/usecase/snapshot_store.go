package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"mei-diagnostic/internal/domain"
)

const snapshotKeyPrefix = "diagnostic:"

// SnapshotStore keeps the latest snapshot per entity in memory and in the
// durable repository. Writes always replace the whole value.
type SnapshotStore struct {
	mu     sync.RWMutex
	repo   SnapshotRepository
	cache  map[string]*domain.DiagnosticSnapshot
	logger *zap.Logger
}

// NewSnapshotStore creates a store backed by repo.
func NewSnapshotStore(repo SnapshotRepository, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{
		repo:   repo,
		cache:  make(map[string]*domain.DiagnosticSnapshot),
		logger: logger,
	}
}

// NormalizeEntityID strips every non-digit character from a CNPJ.
func NormalizeEntityID(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, id)
}

// SnapshotKey is the storage key for an entity identifier.
func SnapshotKey(entityID string) string {
	return snapshotKeyPrefix + NormalizeEntityID(entityID)
}

// Save persists snapshot as the latest one for entityID.
func (s *SnapshotStore) Save(ctx context.Context, entityID string, snapshot *domain.DiagnosticSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("could not encode snapshot: %w", err)
	}
	key := SnapshotKey(entityID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = snapshot
	if err := s.repo.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("could not persist snapshot %s: %w", key, err)
	}
	return nil
}

// Load returns the latest snapshot for entityID, or nil when there is none.
// A corrupt persisted payload is purged and reported as absence.
func (s *SnapshotStore) Load(ctx context.Context, entityID string) (*domain.DiagnosticSnapshot, error) {
	key := SnapshotKey(entityID)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	payload, err := s.repo.Get(ctx, key)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read snapshot %s: %w", key, err)
	}

	var snapshot domain.DiagnosticSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Warn("purging corrupt snapshot",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistenceCorrupt, err)))
		if delErr := s.repo.Delete(ctx, key); delErr != nil {
			s.logger.Warn("could not purge corrupt snapshot", zap.String("key", key), zap.Error(delErr))
		}
		return nil, nil
	}

	s.mu.Lock()
	// A concurrent Save wins over what was read from disk.
	if existing, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.cache[key] = &snapshot
	s.mu.Unlock()
	return &snapshot, nil
}

// Peek returns the in-memory snapshot without touching the repository.
func (s *SnapshotStore) Peek(entityID string) *domain.DiagnosticSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[SnapshotKey(entityID)]
}
