package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"session-control-plane/internal/server/interceptors"
)

// AdminChecker reports whether a set of roles makes an administrator. *admincache.Cache satisfies it.
type AdminChecker interface {
	IsAdmin(ctx context.Context, roleNames []string) (bool, error)
}

// RequireAdmin ensures the caller is a user (not an API credential) whose roles carry every administrator right.
// Returns the caller's username on success; returns a gRPC error on failure.
func RequireAdmin(ctx context.Context, users UserGetter, admins AdminChecker) (string, error) {
	claims, ok := interceptors.GetClaims(ctx)
	if !ok || claims.Subject == "" {
		return "", status.Error(codes.Unauthenticated, "authenticated caller required")
	}
	if interceptors.IsAPICaller(ctx) {
		return "", status.Error(codes.PermissionDenied, "api credentials cannot act as administrator")
	}
	u, err := loadUser(ctx, users, claims.Subject)
	if err != nil {
		return "", err
	}
	admin, err := admins.IsAdmin(ctx, u.RoleNames())
	if err != nil {
		return "", status.Error(codes.Internal, "failed to resolve administrator rights")
	}
	if !admin {
		return "", status.Error(codes.PermissionDenied, "administrator required")
	}
	return claims.Subject, nil
}
