package memory

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

// AuditStore is the in-memory audit trail.
type AuditStore struct {
	s *Store
}

func (as *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	as.s.audit = append(as.s.audit, domain.AuditEntry{
		ID:        int64(len(as.s.audit) + 1),
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (as *AuditStore) List(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	var out []domain.AuditEntry
	for i := len(as.s.audit) - 1; i >= 0; i-- {
		e := as.s.audit[i]
		if strings.HasPrefix(e.Event, f.EventPrefix) && inRange(e.CreatedAt, f.ListOpts) {
			out = append(out, e)
		}
	}
	start, end := page(len(out), f.ListOpts)
	return out[start:end], nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
