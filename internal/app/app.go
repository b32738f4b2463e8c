// Package app wires the control plane's components from configuration for the cmd binaries.
package app

import (
	"context"
	"database/sql"
	"time"

	"session-control-plane/internal/admincache"
	apirepo "session-control-plane/internal/apicredential/repository"
	apiservice "session-control-plane/internal/apicredential/service"
	"session-control-plane/internal/config"
	credentialrepo "session-control-plane/internal/credential/repository"
	identitydomain "session-control-plane/internal/identity/domain"
	identityrepo "session-control-plane/internal/identity/repository"
	"session-control-plane/internal/invalidation"
	"session-control-plane/internal/maintenance"
	"session-control-plane/internal/security"
	"session-control-plane/internal/telemetry"
)

// Components are the long-lived services built once per process.
type Components struct {
	Tokens       *security.TokenEngine
	Cascade      *invalidation.Cascade
	AdminCache   *admincache.Cache
	AdminGuard   *admincache.Guard
	APIIssuer    *apiservice.Issuer
	Maintenance  *maintenance.Runner
	Identity     *identityrepo.PostgresRepository
	APICredStore apirepo.Repository
}

// Build wires every component over conn. events may be nil.
// Install the global OTel providers before calling it so instruments bind to them.
func Build(cfg *config.Config, conn *sql.DB, events telemetry.EventEmitter) (*Components, error) {
	key, err := cfg.SealingKey()
	if err != nil {
		return nil, err
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		return nil, err
	}

	identity := identityrepo.NewPostgresRepository(conn)
	tokens := security.NewTokenEngine(credentialrepo.NewPostgresRepository(conn), security.EngineConfig{
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
		Sealer:     sealer,
		Nonces:     NonceLookup(identity),
		Subjects:   SubjectLookup(identity),
		Events:     events,
	})

	apiCreds := apirepo.NewPostgresRepository(conn)
	policy := invalidation.FailFast
	if cfg.BestEffortInvalidation() {
		policy = invalidation.BestEffort
	}
	cascade := invalidation.NewCascade(invalidation.Deps{
		Revoker:  tokens,
		Detector: invalidation.NewChangeDetector(identity),
		Members:  identity,
		APICreds: apiCreds,
		Events:   events,
		Policy:   policy,
	})

	cache := admincache.New(cfg.AdminRightsList(), identity.Rights(), identity)
	issuer := apiservice.NewIssuer(apiCreds, identity.Rights(), tokens, cascade, events, cfg.DefaultAPITokenTTL())
	retention := time.Duration(cfg.APITokenRetentionDays) * 24 * time.Hour

	return &Components{
		Tokens:       tokens,
		Cascade:      cascade,
		AdminCache:   cache,
		AdminGuard:   admincache.NewGuard(cache, identity, identity),
		APIIssuer:    issuer,
		Maintenance:  maintenance.NewRunner(tokens, issuer, cfg.SessionGrace(), retention),
		Identity:     identity,
		APICredStore: apiCreds,
	}, nil
}

// UserLookup finds a user by username; (nil, nil) when absent.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*identitydomain.User, error)
}

// NonceLookup returns the current nonce of a stored user. Unknown users get an empty nonce,
// which never matches a minted token.
func NonceLookup(users UserLookup) security.NonceFunc {
	return func(ctx context.Context, username string) (string, error) {
		u, err := users.GetByUsername(ctx, username)
		if err != nil || u == nil {
			return "", err
		}
		return u.Nonce, nil
	}
}

// SubjectLookup reloads a user for token renewal. It returns a nil subject for unknown users.
func SubjectLookup(users UserLookup) security.SubjectFunc {
	return func(ctx context.Context, username string) (identitydomain.TokenSubject, error) {
		u, err := users.GetByUsername(ctx, username)
		if err != nil || u == nil {
			return nil, err
		}
		return u, nil
	}
}
