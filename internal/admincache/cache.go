// Package admincache keeps the set of administrator rights and roles in memory so the
// last-administrator rule can be checked on every role or user change without re-reading all roles.
package admincache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"session-control-plane/internal/identity/domain"
	"session-control-plane/internal/identity/repository"
)

// loadTimeout bounds one build of the cache state.
const loadTimeout = 10 * time.Second

// ErrLastAdmin is returned when a change would leave no user with administrator rights.
var ErrLastAdmin = errors.New("admincache: change would remove the last administrator")

// Cache maps roles to the administrator rights they carry. It is populated on first read and
// must be Reset whenever rights or roles change.
type Cache struct {
	adminAuthorities []string
	rights           repository.RightRepository
	roles            repository.RoleRepository

	sf  singleflight.Group
	mu  sync.RWMutex
	gen uint64
	st  *state
}

type state struct {
	adminRights []domain.Right
	// roleAdmin holds, per role name, the admin authorities that role carries. Roles without any are omitted.
	roleAdmin map[string]map[string]bool
}

// New returns an empty Cache. adminAuthorities names the rights that together make an administrator.
func New(adminAuthorities []string, rights repository.RightRepository, roles repository.RoleRepository) *Cache {
	return &Cache{
		adminAuthorities: append([]string(nil), adminAuthorities...),
		rights:           rights,
		roles:            roles,
	}
}

// Reset drops the cached state; the next read reloads it.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.st = nil
	c.gen++
	c.mu.Unlock()
}

// IsEmpty reports whether nothing is cached: no admin rights and no admin role mapping.
func (c *Cache) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st == nil || (len(c.st.adminRights) == 0 && len(c.st.roleAdmin) == 0)
}

// load returns the cached state, building it once for all concurrent callers. The build runs
// detached from any single caller so one cancelled request cannot fail the others; each caller
// still stops waiting when its own ctx is done. A Reset during the build discards the result
// and the build is repeated under the new generation.
func (c *Cache) load(ctx context.Context) (*state, error) {
	for {
		c.mu.RLock()
		st, gen := c.st, c.gen
		c.mu.RUnlock()
		if st != nil {
			return st, nil
		}
		ch := c.sf.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
			buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
			defer cancel()
			built, err := c.build(buildCtx)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen != gen {
				return nil, nil
			}
			c.st = built
			return built, nil
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			if built, ok := res.Val.(*state); ok && built != nil {
				return built, nil
			}
		}
	}
}

func (c *Cache) build(ctx context.Context) (*state, error) {
	st := &state{roleAdmin: make(map[string]map[string]bool)}
	resolved := make(map[string]bool, len(c.adminAuthorities))
	for _, authority := range c.adminAuthorities {
		if resolved[authority] {
			continue
		}
		rt, err := c.rights.GetByAuthority(ctx, authority)
		if err != nil {
			return nil, fmt.Errorf("admincache: load right %s: %w", authority, err)
		}
		if rt == nil {
			log.Printf("admincache: admin right %s does not exist, ignoring", authority)
			continue
		}
		resolved[authority] = true
		st.adminRights = append(st.adminRights, *rt)
	}
	if len(st.adminRights) == 0 {
		return st, nil
	}
	roles, err := c.roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("admincache: load roles: %w", err)
	}
	for _, ro := range roles {
		carried := make(map[string]bool)
		for _, rt := range ro.Rights {
			if resolved[rt.Authority] {
				carried[rt.Authority] = true
			}
		}
		if len(carried) > 0 {
			st.roleAdmin[ro.Name] = carried
		}
	}
	return st, nil
}

// AdminRights returns the configured administrator rights that exist in storage.
func (c *Cache) AdminRights(ctx context.Context) ([]domain.Right, error) {
	st, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]domain.Right(nil), st.adminRights...), nil
}

// AdminRoles returns the sorted names of roles that carry every administrator right on their own.
func (c *Cache) AdminRoles(ctx context.Context) ([]string, error) {
	st, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for name, carried := range st.roleAdmin {
		if len(carried) == len(st.adminRights) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// IsAdmin reports whether the roles together carry every administrator right.
// With no administrator rights resolved, nobody is an administrator.
func (c *Cache) IsAdmin(ctx context.Context, roleNames []string) (bool, error) {
	st, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	return st.covers(roleNames, ""), nil
}

// RetainsAdminWithout reports whether roleNames minus stripped still carry every administrator right.
func (c *Cache) RetainsAdminWithout(ctx context.Context, roleNames []string, stripped string) (bool, error) {
	st, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	return st.covers(roleNames, stripped), nil
}

// rolesCarryingAdmin returns every role that carries at least one administrator right.
func (c *Cache) rolesCarryingAdmin(ctx context.Context) ([]string, error) {
	st, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.roleAdmin))
	for name := range st.roleAdmin {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *state) covers(roleNames []string, stripped string) bool {
	if len(s.adminRights) == 0 {
		return false
	}
	have := make(map[string]bool, len(s.adminRights))
	for _, name := range roleNames {
		if name == stripped {
			continue
		}
		for authority := range s.roleAdmin[name] {
			have[authority] = true
		}
	}
	return len(have) == len(s.adminRights)
}
