package interceptors

import (
	"context"
	"errors"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"session-control-plane/internal/credential/domain"
	"session-control-plane/internal/security"
)

const bearerPrefix = "bearer "

// TokenVerifier verifies a serialized session token. *security.TokenEngine satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*security.Claims, error)
}

// AuthUnary returns a unary server interceptor that verifies the Bearer token from gRPC
// metadata and stores its claims in context for protected RPCs. REFRESH tokens are not
// accepted as bearer credentials. publicMethods lists full method names callable without a token.
func AuthUnary(verifier TokenVerifier, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := authenticate(ctx, verifier, publicMethods[info.FullMethod])
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is AuthUnary for streaming RPCs.
func AuthStream(verifier TokenVerifier, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), verifier, publicMethods[info.FullMethod])
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func authenticate(ctx context.Context, verifier TokenVerifier, public bool) (context.Context, error) {
	token := extractBearer(ctx)
	if token == "" {
		if public {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}

	claims, err := verifier.Verify(ctx, token)
	if err == nil && claims.Kind == domain.KindRefresh {
		err = security.ErrInvalidToken
	}
	if err != nil {
		if public {
			return ctx, nil
		}
		if isRejection(err) {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		log.Printf("auth: verify token: %v", err)
		return nil, status.Error(codes.Unavailable, "credential store unavailable")
	}
	return WithClaims(ctx, claims), nil
}

func isRejection(err error) bool {
	return errors.Is(err, security.ErrInvalidToken) ||
		errors.Is(err, security.ErrTokenExpired) ||
		errors.Is(err, security.ErrCredentialNotFound) ||
		errors.Is(err, security.ErrNonceMismatch)
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
