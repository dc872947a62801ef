package memory

import (
	"context"
	"sort"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// FeeConfigStore implements domain.FeeConfigStore in memory.
type FeeConfigStore struct {
	s *Store
}

// Get returns the fee rule for feeType.
func (fs *FeeConfigStore) Get(_ context.Context, feeType string) (domain.FeeConfig, error) {
	fs.s.mu.Lock()
	defer fs.s.mu.Unlock()

	cfg, ok := fs.s.fees[feeType]
	if !ok {
		return domain.FeeConfig{}, domain.ErrNotFound
	}
	return cfg, nil
}

// Upsert stores or replaces a fee rule.
func (fs *FeeConfigStore) Upsert(_ context.Context, cfg domain.FeeConfig) error {
	fs.s.mu.Lock()
	defer fs.s.mu.Unlock()

	fs.s.fees[cfg.FeeType] = cfg
	return nil
}

// InsertIfAbsent stores cfg only when no rule exists for its fee type.
func (fs *FeeConfigStore) InsertIfAbsent(_ context.Context, cfg domain.FeeConfig) (bool, error) {
	fs.s.mu.Lock()
	defer fs.s.mu.Unlock()

	if _, ok := fs.s.fees[cfg.FeeType]; ok {
		return false, nil
	}
	fs.s.fees[cfg.FeeType] = cfg
	return true, nil
}

// List returns every fee rule ordered by fee type.
func (fs *FeeConfigStore) List(_ context.Context) ([]domain.FeeConfig, error) {
	fs.s.mu.Lock()
	defer fs.s.mu.Unlock()

	out := make([]domain.FeeConfig, 0, len(fs.s.fees))
	for _, cfg := range fs.s.fees {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeeType < out[j].FeeType })
	return out, nil
}

var _ domain.FeeConfigStore = (*FeeConfigStore)(nil)
