package service

import (
	"context"
	"errors"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/pkg/cache"
)

const institutionStatusTTL = 30 * time.Second

// InstitutionGate answers whether an institution is active, caching the
// answer briefly since every authenticated request asks.
type InstitutionGate struct {
	repo  domain.InstitutionRepository
	cache *cache.Cache[bool]
}

// NewInstitutionGate creates a gate; a nil cache disables caching.
func NewInstitutionGate(repo domain.InstitutionRepository, c *cache.Cache[bool]) *InstitutionGate {
	return &InstitutionGate{repo: repo, cache: c}
}

// Active reports whether institutionID is active. Users without an
// institution (SUPER_ADMIN) always pass; a missing institution is inactive.
func (g *InstitutionGate) Active(ctx context.Context, institutionID string) (bool, error) {
	if institutionID == "" {
		return true, nil
	}
	if g.cache != nil {
		if active, ok := g.cache.Get(institutionID); ok {
			return active, nil
		}
	}

	active := false
	inst, err := g.repo.GetByID(ctx, institutionID)
	switch {
	case err == nil:
		active = inst.IsActive
	case !errors.Is(err, domain.ErrNotFound):
		return false, err
	}

	if g.cache != nil {
		g.cache.Set(institutionID, active, institutionStatusTTL)
	}
	return active, nil
}

// Forget drops the cached status after the institution changed.
func (g *InstitutionGate) Forget(institutionID string) {
	if g.cache != nil {
		g.cache.Delete(institutionID)
	}
}
