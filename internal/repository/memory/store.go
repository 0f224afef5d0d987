// Package memory provides in-process repositories with the same constraint
// semantics as the PostgreSQL ones. Every mutation runs under one store-wide
// lock, which plays the role of the database's unique indexes and row locks.
package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// table keeps rows in insertion order so listings are stable.
type table[T any] struct {
	rows  map[string]*T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

func (t *table[T]) insert(id string, v *T) {
	t.rows[id] = v
	t.order = append(t.order, id)
}

func (t *table[T]) get(id string) (*T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) remove(id string) {
	delete(t.rows, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
}

// newestFirst returns the rows matching keep, most recently inserted first.
func (t *table[T]) newestFirst(keep func(*T) bool) []*T {
	var out []*T
	for i := len(t.order) - 1; i >= 0; i-- {
		v := t.rows[t.order[i]]
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func cloneAll[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		out = append(out, clone(v))
	}
	return out
}

// paginate slices one page out of rows.
func paginate[T any](rows []*T, p domain.Page) []*T {
	start := min(p.Offset(), len(rows))
	end := min(start+p.Size, len(rows))
	return cloneAll(rows[start:end])
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Store holds every table. Repositories obtained from one Store share state.
type Store struct {
	mu            sync.RWMutex
	institutions  *table[domain.Institution]
	users         *table[domain.User]
	staff         *table[domain.Staff]
	payslips      *table[domain.Payslip]
	subscriptions *table[domain.Subscription]
	payments      *table[domain.Payment]
	audit         []*domain.AuditLog
	now           func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		institutions:  newTable[domain.Institution](),
		users:         newTable[domain.User](),
		staff:         newTable[domain.Staff](),
		payslips:      newTable[domain.Payslip](),
		subscriptions: newTable[domain.Subscription](),
		payments:      newTable[domain.Payment](),
		now:           time.Now,
	}
}

func newID() string {
	return uuid.NewString()
}

func (s *Store) Users() *UserRepository                 { return &UserRepository{s} }
func (s *Store) Institutions() *InstitutionRepository   { return &InstitutionRepository{s} }
func (s *Store) Staff() *StaffRepository                { return &StaffRepository{s} }
func (s *Store) Payslips() *PayslipRepository           { return &PayslipRepository{s} }
func (s *Store) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{s} }
func (s *Store) Payments() *PaymentRepository           { return &PaymentRepository{s} }
func (s *Store) Audit() *AuditRepository                { return &AuditRepository{s} }

// AuditEntries returns a copy of every appended audit record, oldest first.
func (s *Store) AuditEntries() []*domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.audit)
}
