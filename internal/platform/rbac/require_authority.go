package rbac

import (
	"context"
	"slices"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"session-control-plane/internal/identity/domain"
	"session-control-plane/internal/server/interceptors"
)

// UserGetter loads the caller's user so its current rights can be checked.
type UserGetter interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// RequireAuthority ensures the caller is authenticated and holds authority.
// API callers are checked against the rights frozen into their token; users against their current roles.
// Returns the caller's username on success; returns a gRPC error (Unauthenticated, PermissionDenied or Internal) on failure.
func RequireAuthority(ctx context.Context, users UserGetter, authority string) (string, error) {
	claims, ok := interceptors.GetClaims(ctx)
	if !ok || claims.Subject == "" {
		return "", status.Error(codes.Unauthenticated, "authenticated caller required")
	}
	if interceptors.IsAPICaller(ctx) {
		if !slices.Contains(claims.Rights, authority) {
			return "", status.Errorf(codes.PermissionDenied, "right %s required", authority)
		}
		return claims.Subject, nil
	}
	u, err := loadUser(ctx, users, claims.Subject)
	if err != nil {
		return "", err
	}
	if !u.HasAuthority(authority) {
		return "", status.Errorf(codes.PermissionDenied, "right %s required", authority)
	}
	return claims.Subject, nil
}

func loadUser(ctx context.Context, users UserGetter, username string) (*domain.User, error) {
	u, err := users.GetByUsername(ctx, username)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to resolve caller")
	}
	if u == nil {
		return nil, status.Error(codes.Unauthenticated, "caller no longer exists")
	}
	if !u.Enabled || !u.AccountNonLocked {
		return nil, status.Error(codes.PermissionDenied, "account disabled or locked")
	}
	return u, nil
}
