// Package memory holds in-process repository implementations for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

var _ repository.AuditRepository = (*AuditRepository)(nil)

// AuditRepository keeps audit entries in memory.
type AuditRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Record(_ context.Context, entry *domain.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	e := *entry
	if entry.Details != nil {
		e.Details = make(map[string]string, len(entry.Details))
		for k, v := range entry.Details {
			e.Details[k] = v
		}
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

// List returns matching entries, newest first.
func (r *AuditRepository) List(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		if f.ClientID != nil && (e.ClientID == nil || *e.ClientID != *f.ClientID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Since != nil && e.OccurredAt.Before(*f.Since) {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	// Stable on insertion order so equal timestamps list the latest write first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })

	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
