package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

// auditRepo keeps the ledger as a slice indexed by sequence-1.
type auditRepo struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func (r *auditRepo) Head(ctx context.Context) (store.AuditHead, error) {
	if err := ctx.Err(); err != nil {
		return store.AuditHead{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.headLocked(), nil
}

func (r *auditRepo) headLocked() store.AuditHead {
	if len(r.entries) == 0 {
		return store.AuditHead{}
	}
	last := r.entries[len(r.entries)-1]
	return store.AuditHead{Sequence: last.Sequence, Hash: last.EntryHash}
}

func (r *auditRepo) AppendIfHead(ctx context.Context, prev store.AuditHead, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headLocked() != prev || entry.Sequence != prev.Sequence+1 {
		return store.ErrConflict
	}
	r.entries = append(r.entries, cloneEntry(entry))
	return nil
}

func (r *auditRepo) Range(ctx context.Context, from, to uint64) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if from == 0 {
		from = 1
	}
	if n := uint64(len(r.entries)); to > n {
		to = n
	}
	if from > to {
		return nil, nil
	}

	out := make([]domain.AuditEntry, 0, to-from+1)
	for _, e := range r.entries[from-1 : to] {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (r *auditRepo) ListByJTI(ctx context.Context, jti string, after uint64, limit int) ([]domain.AuditEntry, error) {
	return r.list(ctx, after, limit, func(e domain.AuditEntry) bool { return e.JTI == jti })
}

func (r *auditRepo) ListByCorrelation(ctx context.Context, cid string, after uint64, limit int) ([]domain.AuditEntry, error) {
	return r.list(ctx, after, limit, func(e domain.AuditEntry) bool { return e.CorrelationID == cid })
}

func (r *auditRepo) list(ctx context.Context, after uint64, limit int, keep func(domain.AuditEntry) bool) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AuditEntry
	for i := int(min(after, uint64(len(r.entries)))); i < len(r.entries); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(r.entries[i]) {
			out = append(out, cloneEntry(r.entries[i]))
		}
	}
	return out, nil
}

func cloneEntry(e domain.AuditEntry) domain.AuditEntry {
	e.Details = maps.Clone(e.Details)
	return e
}
