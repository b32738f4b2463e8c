package repository

import (
	"context"
	"errors"
	"time"

	"session-control-plane/internal/apicredential/domain"
)

// ErrDuplicateDescription is returned by Create when the owner already has a credential with the same description.
var ErrDuplicateDescription = errors.New("apicredential: duplicate description for owner")

// Filter narrows List. Zero values match everything; Description matches as a case-insensitive substring.
type Filter struct {
	Owner       string
	Status      domain.Status
	Description string
	Limit       int
	Offset      int
}

// Repository persists API credentials with their granted rights.
// Lookups return (nil, nil) when no row matches. Owners are matched case-insensitively.
type Repository interface {
	Create(ctx context.Context, c *domain.ApiCredential) error
	GetByID(ctx context.Context, id string) (*domain.ApiCredential, error)
	GetByOwnerAndDescription(ctx context.Context, owner, description string) (*domain.ApiCredential, error)
	List(ctx context.Context, f Filter) ([]*domain.ApiCredential, error)
	ListByOwner(ctx context.Context, owner string) ([]*domain.ApiCredential, error)
	// ListActiveValidUntilBefore returns ACTIVE credentials whose last valid day is before day.
	ListActiveValidUntilBefore(ctx context.Context, day time.Time) ([]*domain.ApiCredential, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status, validUntil time.Time) error
	Delete(ctx context.Context, id string) error
	// DeleteInactiveValidUntilBefore removes non-ACTIVE credentials whose last valid day is before day.
	DeleteInactiveValidUntilBefore(ctx context.Context, day time.Time) (int64, error)
}
