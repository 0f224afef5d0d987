package memory

import (
	"context"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// AuditRepository appends audit records in memory
type AuditRepository struct{ s *Store }

func (r *AuditRepository) Append(_ context.Context, e *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = newID()
	e.CreatedAt = r.s.now()
	r.s.audit = append(r.s.audit, clone(e))
	return nil
}
