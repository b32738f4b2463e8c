package repository

import (
	"context"
	"time"

	"session-control-plane/internal/credential/domain"
)

// Repository defines persistence for credentials. Deleting a credential removes its children.
type Repository interface {
	Create(ctx context.Context, c *domain.Credential) error
	// GetByID returns (nil, nil) when the credential does not exist.
	GetByID(ctx context.Context, id string) (*domain.Credential, error)
	// ListBySubjectAndKind matches username case-insensitively. Results are ordered by IssuedAt.
	ListBySubjectAndKind(ctx context.Context, username string, kind domain.Kind) ([]*domain.Credential, error)
	ListChildren(ctx context.Context, parentID string) ([]*domain.Credential, error)
	// Delete is a no-op when id is absent.
	Delete(ctx context.Context, id string) error
	DeleteChildren(ctx context.Context, parentID string) error
	// DeleteBySubject removes every credential of username regardless of kind and returns the count.
	DeleteBySubject(ctx context.Context, username string) (int64, error)
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}
