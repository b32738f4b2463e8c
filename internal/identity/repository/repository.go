package repository

import (
	"context"

	"session-control-plane/internal/identity/domain"
)

// UserRepository reads users with their roles and rights resolved.
// Lookups return (nil, nil) when no row matches.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// RoleRepository reads roles with their rights resolved.
type RoleRepository interface {
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	ListAll(ctx context.Context) ([]*domain.Role, error)
}

// RightRepository reads rights by authority.
type RightRepository interface {
	GetByAuthority(ctx context.Context, authority string) (*domain.Right, error)
	ListAll(ctx context.Context) ([]*domain.Right, error)
}

// MembershipQuery answers which usernames currently hold a role or a right.
type MembershipQuery interface {
	UsernamesByRole(ctx context.Context, role string) ([]string, error)
	UsernamesByRight(ctx context.Context, authority string) ([]string, error)
}
