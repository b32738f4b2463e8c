package admincache

import (
	"context"
	"fmt"
	"strings"

	"session-control-plane/internal/identity/domain"
	"session-control-plane/internal/identity/repository"
)

// Guard enforces that at least one administrator remains after a role is taken away from a user
// or a user is deleted.
type Guard struct {
	cache   *Cache
	members repository.MembershipQuery
	users   repository.UserRepository
}

// NewGuard returns a Guard reading admin state from cache.
func NewGuard(cache *Cache, members repository.MembershipQuery, users repository.UserRepository) *Guard {
	return &Guard{cache: cache, members: members, users: users}
}

// CheckRoleRemoval returns ErrLastAdmin when removing role from user would leave no administrator.
func (g *Guard) CheckRoleRemoval(ctx context.Context, user *domain.User, role string) error {
	if user == nil {
		return nil
	}
	roles := user.RoleNames()
	admin, err := g.cache.IsAdmin(ctx, roles)
	if err != nil || !admin {
		return err
	}
	still, err := g.cache.RetainsAdminWithout(ctx, roles, role)
	if err != nil || still {
		return err
	}
	return g.requireOtherAdmin(ctx, user.Username())
}

// CheckUserRemoval returns ErrLastAdmin when user is the only administrator.
func (g *Guard) CheckUserRemoval(ctx context.Context, user *domain.User) error {
	if user == nil {
		return nil
	}
	admin, err := g.cache.IsAdmin(ctx, user.RoleNames())
	if err != nil || !admin {
		return err
	}
	return g.requireOtherAdmin(ctx, user.Username())
}

func (g *Guard) requireOtherAdmin(ctx context.Context, username string) error {
	roles, err := g.cache.rolesCarryingAdmin(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{strings.ToLower(username): true}
	for _, role := range roles {
		names, err := g.members.UsernamesByRole(ctx, role)
		if err != nil {
			return fmt.Errorf("admincache: members of %s: %w", role, err)
		}
		for _, name := range names {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			other, err := g.users.GetByUsername(ctx, name)
			if err != nil {
				return fmt.Errorf("admincache: load %s: %w", name, err)
			}
			if other == nil {
				continue
			}
			ok, err := g.cache.IsAdmin(ctx, other.RoleNames())
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
	return ErrLastAdmin
}
