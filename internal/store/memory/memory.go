package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

// Store keeps results in process memory. Used for dry runs and tests.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]store.Versioned // index 0 is the latest
	now      func() time.Time
}

var _ store.HistoryStore = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		versions: make(map[string][]store.Versioned),
		now:      time.Now,
	}
}

// Get returns the latest result for upgradeID
func (s *Store) Get(_ context.Context, upgradeID string) (*model.UpgradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[upgradeID]
	if len(versions) == 0 {
		return nil, store.ErrNotFound
	}
	result := versions[0].Result.Clone()
	return &result, nil
}

// Put records result as the latest version
func (s *Store) Put(_ context.Context, upgradeID string, result model.UpgradeResult) error {
	if err := result.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[upgradeID]
	if len(versions) > 0 {
		versions[0].Version = maxVersion(versions) + 1
	}
	entry := store.Versioned{Version: 0, CreatedAt: s.now().UTC(), Result: result.Clone()}
	s.versions[upgradeID] = append([]store.Versioned{entry}, versions...)
	return nil
}

// History returns all versions, latest first
func (s *Store) History(_ context.Context, upgradeID string) ([]store.Versioned, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[upgradeID]
	if len(versions) == 0 {
		return nil, store.ErrNotFound
	}
	out := make([]store.Versioned, len(versions))
	for i, v := range versions {
		out[i] = v
		out[i].Result = v.Result.Clone()
	}
	return out, nil
}

// Prune keeps the latest version plus the keep most recent earlier versions
func (s *Store) Prune(_ context.Context, upgradeID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[upgradeID]
	limit := keep + 1
	if len(versions) <= limit {
		return 0, nil
	}
	pruned := int64(len(versions) - limit)
	s.versions[upgradeID] = versions[:limit]
	return pruned, nil
}

// UpgradeIDs lists the upgrade ids with stored results, sorted
func (s *Store) UpgradeIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.versions))
	for id := range s.versions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// maxVersion returns the highest version number in versions. The latest entry
// carries version 0, so a single entry yields 0.
func maxVersion(versions []store.Versioned) int64 {
	var m int64
	for _, v := range versions {
		m = max(m, v.Version)
	}
	return m
}
