package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"session-control-plane/internal/credential/domain"
)

// MemoryRepository is an in-process Repository for tests and single-node development.
// It copies on the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Credential
}

// NewMemoryRepository returns an empty in-memory credential store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Credential)}
}

func (r *MemoryRepository) Create(ctx context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[c.ID] = copyCredential(c)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	return copyCredential(c), nil
}

func (r *MemoryRepository) ListBySubjectAndKind(ctx context.Context, username string, kind domain.Kind) ([]*domain.Credential, error) {
	return r.filter(func(c *domain.Credential) bool {
		return strings.EqualFold(c.Username, username) && c.Kind == kind
	}), nil
}

func (r *MemoryRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.Credential, error) {
	return r.filter(func(c *domain.Credential) bool { return c.ParentID == parentID }), nil
}

func (r *MemoryRepository) filter(keep func(*domain.Credential) bool) []*domain.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Credential
	for _, c := range r.m {
		if keep(c) {
			out = append(out, copyCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return nil
	}
	delete(r.m, id)
	r.deleteChildrenLocked(id)
	return nil
}

func (r *MemoryRepository) DeleteChildren(ctx context.Context, parentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteChildrenLocked(parentID)
	return nil
}

func (r *MemoryRepository) deleteChildrenLocked(parentID string) {
	for id, c := range r.m {
		if c.ParentID == parentID {
			delete(r.m, id)
		}
	}
}

func (r *MemoryRepository) DeleteBySubject(ctx context.Context, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.m {
		if strings.EqualFold(c.Username, username) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.m {
		if c.ExpiresAt.Before(before) {
			delete(r.m, id)
			n++
		}
	}
	// orphaned children follow their parent, as the foreign key does in Postgres
	for id, c := range r.m {
		if c.ParentID != "" {
			if _, ok := r.m[c.ParentID]; !ok {
				delete(r.m, id)
				n++
			}
		}
	}
	return n, nil
}

// Len returns the number of stored credentials.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func copyCredential(c *domain.Credential) *domain.Credential {
	c2 := *c
	c2.SigningSecret = append([]byte(nil), c.SigningSecret...)
	return &c2
}
