package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"session-control-plane/internal/apicredential/domain"
	identitydomain "session-control-plane/internal/identity/domain"
)

// MemoryRepository is an in-process Repository for tests and single-node development.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.ApiCredential
}

// NewMemoryRepository returns an empty in-memory API credential store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.ApiCredential)}
}

func (r *MemoryRepository) Create(ctx context.Context, c *domain.ApiCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.m {
		if existing.Owner == c.Owner && existing.Description == c.Description {
			return ErrDuplicateDescription
		}
	}
	cp := copyAPICredential(c)
	cp.Token = ""
	cp.ValidUntil = domain.Day(cp.ValidUntil)
	r.m[c.ID] = cp
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.ApiCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	return copyAPICredential(c), nil
}

func (r *MemoryRepository) GetByOwnerAndDescription(ctx context.Context, owner, description string) (*domain.ApiCredential, error) {
	found := r.filter(func(c *domain.ApiCredential) bool {
		return c.SameOwner(owner) && c.Description == description
	})
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*domain.ApiCredential, error) {
	out := r.filter(func(c *domain.ApiCredential) bool {
		if f.Owner != "" && !c.SameOwner(f.Owner) {
			return false
		}
		if f.Status != "" && c.Status != f.Status {
			return false
		}
		if f.Description != "" && !strings.Contains(strings.ToLower(c.Description), strings.ToLower(f.Description)) {
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ApiCredential, error) {
	return r.List(ctx, Filter{Owner: owner})
}

func (r *MemoryRepository) ListActiveValidUntilBefore(ctx context.Context, day time.Time) ([]*domain.ApiCredential, error) {
	cutoff := domain.Day(day)
	out := r.filter(func(c *domain.ApiCredential) bool {
		return c.Status == domain.StatusActive && c.ValidUntil.Before(cutoff)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, validUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[id]; ok {
		c.Status = status
		c.ValidUntil = domain.Day(validUntil)
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *MemoryRepository) DeleteInactiveValidUntilBefore(ctx context.Context, day time.Time) (int64, error) {
	cutoff := domain.Day(day)
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.m {
		if c.Status != domain.StatusActive && c.ValidUntil.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) filter(keep func(*domain.ApiCredential) bool) []*domain.ApiCredential {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApiCredential
	for _, c := range r.m {
		if keep(c) {
			out = append(out, copyAPICredential(c))
		}
	}
	return out
}

func copyAPICredential(c *domain.ApiCredential) *domain.ApiCredential {
	cp := *c
	cp.Rights = append([]identitydomain.Right(nil), c.Rights...)
	return &cp
}
