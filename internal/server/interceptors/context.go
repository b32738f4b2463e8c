package interceptors

import (
	"context"

	"session-control-plane/internal/credential/domain"
	"session-control-plane/internal/security"
)

type contextKey struct{ name string }

var claimsKey = contextKey{"claims"}

// WithClaims returns a context carrying the verified token claims.
// Handlers read them via GetClaims, GetSubject, GetCredentialID.
func WithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims returns the verified claims and true if set; otherwise nil, false.
func GetClaims(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*security.Claims)
	return c, ok && c != nil
}

// GetSubject returns the authenticated username and true if set; otherwise "", false.
func GetSubject(ctx context.Context) (string, bool) {
	c, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return c.Subject, true
}

// GetCredentialID returns the id of the credential behind the caller's token.
func GetCredentialID(ctx context.Context) (string, bool) {
	c, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return c.CredentialID, true
}

// IsAPICaller reports whether the caller authenticated with an API credential.
func IsAPICaller(ctx context.Context) bool {
	c, ok := GetClaims(ctx)
	return ok && c.Kind == domain.KindAPI
}
