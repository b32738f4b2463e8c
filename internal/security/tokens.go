package security

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"session-control-plane/internal/credential/domain"
	"session-control-plane/internal/credential/repository"
	identitydomain "session-control-plane/internal/identity/domain"
	"session-control-plane/internal/telemetry"
	telemetrydomain "session-control-plane/internal/telemetry/domain"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed, or otherwise unusable.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a correctly signed token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrCredentialNotFound is returned when the credential behind a token is absent, which is how revocation takes effect.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrInvalidParent is returned when an ACCESS credential's parent is missing, not REFRESH, or owned by someone else.
	ErrInvalidParent = errors.New("invalid parent credential")
	// ErrNonceMismatch is returned when the token nonce no longer matches the subject's current nonce.
	ErrNonceMismatch = errors.New("token nonce does not match subject")
	// ErrCredentialNotOwned is returned when a caller addresses a session that belongs to another subject.
	ErrCredentialNotOwned = errors.New("credential not owned by caller")
	// ErrInvalidSubject is returned when minting without a subject or username.
	ErrInvalidSubject = errors.New("token subject is required")
	// ErrInvalidValidity is returned when an expiry is missing for API credentials or not in the future.
	ErrInvalidValidity = errors.New("invalid token validity")
)

const secretSize = 64 // HS512 key length

// kindHeader is the private JOSE header carrying the credential kind; typ stays "JWT".
const kindHeader = "knd"

var signingMethod = jwt.SigningMethodHS512

// Claims are the claims carried by every session token.
type Claims struct {
	jwt.RegisteredClaims
	Nonce      string   `json:"nonce"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	UID        *int64   `json:"uid,omitempty"`
	Rights     []string `json:"rights,omitempty"` // API kind only

	// Populated by Verify from the credential row; never serialized.
	CredentialID string      `json:"-"`
	Kind         domain.Kind `json:"-"`
}

// NonceFunc returns the subject's current nonce. Verification compares it with the token's nonce claim.
type NonceFunc func(ctx context.Context, username string) (string, error)

// SubjectFunc reloads a token subject by username. It returns (nil, nil) when the subject no longer exists.
type SubjectFunc func(ctx context.Context, username string) (identitydomain.TokenSubject, error)

// EngineConfig configures a TokenEngine. Only Issuer and the TTLs are required.
type EngineConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Sealer     SecretSealer          // nil stores secrets unsealed
	Nonces     NonceFunc             // nil skips the nonce check
	Subjects   SubjectFunc           // required by Renew
	Events     telemetry.EventEmitter // nil disables lifecycle events
}

// MintOptions adjusts a single Mint call.
type MintOptions struct {
	ParentID  string // required for ACCESS, forbidden otherwise
	DeviceTag string
	Validity  time.Duration
	ExpiresAt time.Time // wins over Validity when set
}

// TokenEngine mints and verifies HS512 session tokens. Each token is signed with its own
// credential's secret, located through the kid header at verification time.
type TokenEngine struct {
	store      repository.Repository
	sealer     SecretSealer
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nonces     NonceFunc
	subjects   SubjectFunc
	events     telemetry.EventEmitter
	nowF       func() time.Time

	minted         metric.Int64Counter
	verifyFailures metric.Int64Counter
}

// NewTokenEngine returns a TokenEngine persisting credentials in store.
func NewTokenEngine(store repository.Repository, cfg EngineConfig) *TokenEngine {
	sealer := cfg.Sealer
	if sealer == nil {
		sealer = PlainSealer{}
	}
	meter := otel.Meter("session-control-plane/security")
	minted, err := meter.Int64Counter("credentials.minted", metric.WithDescription("Session credentials minted, by kind."))
	if err != nil {
		log.Printf("security: minted counter: %v", err)
	}
	failures, err := meter.Int64Counter("credentials.verify_failures", metric.WithDescription("Token verifications rejected, by reason."))
	if err != nil {
		log.Printf("security: verify failure counter: %v", err)
	}
	return &TokenEngine{
		store:          store,
		sealer:         sealer,
		issuer:         cfg.Issuer,
		accessTTL:      cfg.AccessTTL,
		refreshTTL:     cfg.RefreshTTL,
		nonces:         cfg.Nonces,
		subjects:       cfg.Subjects,
		events:         cfg.Events,
		nowF:           time.Now,
		minted:         minted,
		verifyFailures: failures,
	}
}

func (e *TokenEngine) now() time.Time {
	return e.nowF().UTC().Truncate(time.Second)
}

// Mint persists a fresh credential for subject and returns the signed token.
func (e *TokenEngine) Mint(ctx context.Context, subject identitydomain.TokenSubject, kind domain.Kind, opts MintOptions) (string, error) {
	if subject == nil || strings.TrimSpace(subject.Username()) == "" {
		return "", ErrInvalidSubject
	}
	if !kind.Valid() {
		return "", fmt.Errorf("security: unknown credential kind %q", kind)
	}
	username := subject.Username()
	if err := e.checkParent(ctx, username, kind, opts.ParentID); err != nil {
		return "", err
	}

	now := e.now()
	expiresAt, err := e.expiry(kind, now, opts)
	if err != nil {
		return "", err
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	id := uuid.NewString()
	sealed, err := e.sealer.Seal(secret, []byte(id))
	if err != nil {
		return "", err
	}
	cred := &domain.Credential{
		ID:            id,
		SigningSecret: sealed,
		Username:      username,
		Kind:          kind,
		IssuedAt:      now,
		ExpiresAt:     expiresAt,
		DeviceTag:     opts.DeviceTag,
		ParentID:      opts.ParentID,
	}
	if err := e.store.Create(ctx, cred); err != nil {
		return "", fmt.Errorf("security: persist credential: %w", err)
	}

	given, family := subject.DisplayName()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Nonce:      subject.TokenNonce(),
		GivenName:  given,
		FamilyName: family,
	}
	if uid, ok := subject.NumericID(); ok {
		claims.UID = &uid
	}
	if kind == domain.KindAPI {
		claims.Rights = subject.Authorities()
	}

	t := jwt.NewWithClaims(signingMethod, claims)
	t.Header["kid"] = id
	t.Header[kindHeader] = string(kind)
	signed, err := t.SignedString(secret)
	if err != nil {
		_ = e.store.Delete(ctx, id)
		return "", err
	}

	if e.minted != nil {
		e.minted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	e.emit(telemetrydomain.EventCredentialMinted, username, id, kind, map[string]string{"device_tag": opts.DeviceTag})
	return signed, nil
}

func (e *TokenEngine) checkParent(ctx context.Context, username string, kind domain.Kind, parentID string) error {
	if kind != domain.KindAccess {
		if parentID != "" {
			return ErrInvalidParent
		}
		return nil
	}
	if parentID == "" {
		return ErrInvalidParent
	}
	parent, err := e.store.GetByID(ctx, parentID)
	if err != nil {
		return fmt.Errorf("security: load parent credential: %w", err)
	}
	if parent == nil {
		return ErrCredentialNotFound
	}
	if parent.Kind != domain.KindRefresh || !strings.EqualFold(parent.Username, username) {
		return ErrInvalidParent
	}
	return nil
}

func (e *TokenEngine) expiry(kind domain.Kind, now time.Time, opts MintOptions) (time.Time, error) {
	var exp time.Time
	switch {
	case !opts.ExpiresAt.IsZero():
		exp = opts.ExpiresAt.UTC().Truncate(time.Second)
	case opts.Validity > 0:
		exp = now.Add(opts.Validity)
	case kind == domain.KindAPI:
		return time.Time{}, ErrInvalidValidity
	case kind == domain.KindRefresh:
		exp = now.Add(e.refreshTTL)
	default:
		exp = now.Add(e.accessTTL)
	}
	if !exp.After(now) {
		return time.Time{}, ErrInvalidValidity
	}
	return exp, nil
}

// Verify checks token against the secret of the credential named by its kid header.
// No claim is trusted until that credential has been loaded.
func (e *TokenEngine) Verify(ctx context.Context, token string) (*Claims, error) {
	var cred *domain.Credential
	var lookupErr error
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidToken
		}
		c, err := e.store.GetByID(ctx, kid)
		if err != nil {
			lookupErr = err
			return nil, err
		}
		if c == nil {
			lookupErr = ErrCredentialNotFound
			return nil, ErrCredentialNotFound
		}
		secret, err := e.sealer.Open(c.SigningSecret, []byte(c.ID))
		if err != nil {
			lookupErr = err
			return nil, err
		}
		cred = c
		return secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(e.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(e.nowF),
	)
	if err != nil {
		switch {
		case errors.Is(lookupErr, ErrCredentialNotFound):
			return nil, e.rejected(ctx, ErrCredentialNotFound, "not_found")
		case lookupErr != nil && !errors.Is(lookupErr, ErrSealedSecret):
			return nil, fmt.Errorf("security: load credential: %w", lookupErr)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, e.rejected(ctx, ErrTokenExpired, "expired")
		default:
			return nil, e.rejected(ctx, ErrInvalidToken, "invalid")
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || cred == nil {
		return nil, e.rejected(ctx, ErrInvalidToken, "invalid")
	}
	if !strings.EqualFold(claims.Subject, cred.Username) {
		return nil, e.rejected(ctx, ErrInvalidToken, "subject_mismatch")
	}
	if knd, _ := parsed.Header[kindHeader].(string); knd != string(cred.Kind) {
		return nil, e.rejected(ctx, ErrInvalidToken, "kind_mismatch")
	}
	if e.nonces != nil && cred.Kind != domain.KindAPI {
		current, err := e.nonces(ctx, cred.Username)
		if err != nil {
			return nil, fmt.Errorf("security: load nonce: %w", err)
		}
		if current != claims.Nonce {
			return nil, e.rejected(ctx, ErrNonceMismatch, "nonce")
		}
	}
	claims.CredentialID = cred.ID
	claims.Kind = cred.Kind
	return claims, nil
}

func (e *TokenEngine) rejected(ctx context.Context, err error, reason string) error {
	if e.verifyFailures != nil {
		e.verifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	return err
}

// Revoke deletes the credential and any children it spawned. Absent ids are a no-op.
func (e *TokenEngine) Revoke(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.emit(telemetrydomain.EventCredentialRevoked, "", id, "", nil)
	return nil
}

// RevokeAllForSubject deletes every credential of username regardless of kind or parent.
func (e *TokenEngine) RevokeAllForSubject(ctx context.Context, username string) (int64, error) {
	n, err := e.store.DeleteBySubject(ctx, username)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.emit(telemetrydomain.EventCredentialRevoked, username, "", "", map[string]string{"count": fmt.Sprint(n)})
	}
	return n, nil
}

// Renew mints an ACCESS token under the REFRESH credential behind refreshToken.
// The subject is reloaded so the new token carries current names and nonce.
func (e *TokenEngine) Renew(ctx context.Context, refreshToken, deviceTag string) (string, error) {
	claims, err := e.Verify(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if claims.Kind != domain.KindRefresh {
		return "", ErrInvalidToken
	}
	if e.subjects == nil {
		return "", errors.New("security: renew needs a subject loader")
	}
	subject, err := e.subjects(ctx, claims.Subject)
	if err != nil {
		return "", err
	}
	if subject == nil {
		return "", ErrInvalidToken
	}
	if deviceTag == "" {
		if parent, err := e.store.GetByID(ctx, claims.CredentialID); err == nil && parent != nil {
			deviceTag = parent.DeviceTag
		}
	}
	return e.Mint(ctx, subject, domain.KindAccess, MintOptions{ParentID: claims.CredentialID, DeviceTag: deviceTag})
}

// Session describes one REFRESH credential of a subject.
type Session struct {
	ID        string
	DeviceTag string
	IssuedAt  time.Time
	ExpiresAt time.Time
	LastUsed  *time.Time // nil when no live ACCESS child exists
}

// Sessions lists username's REFRESH credentials with their derived last use.
func (e *TokenEngine) Sessions(ctx context.Context, username string) ([]Session, error) {
	refreshes, err := e.store.ListBySubjectAndKind(ctx, username, domain.KindRefresh)
	if err != nil {
		return nil, err
	}
	now := e.nowF()
	out := make([]Session, 0, len(refreshes))
	for _, r := range refreshes {
		children, err := e.store.ListChildren(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		s := Session{ID: r.ID, DeviceTag: r.DeviceTag, IssuedAt: r.IssuedAt, ExpiresAt: r.ExpiresAt}
		if last, ok := domain.LastUsed(children, now); ok {
			s.LastUsed = &last
		}
		out = append(out, s)
	}
	return out, nil
}

// DeleteSession revokes one of username's REFRESH credentials together with its ACCESS children.
func (e *TokenEngine) DeleteSession(ctx context.Context, username, id string) error {
	c, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCredentialNotFound
	}
	if c.Kind != domain.KindRefresh || !strings.EqualFold(c.Username, username) {
		return ErrCredentialNotOwned
	}
	if err := e.store.DeleteChildren(ctx, id); err != nil {
		return err
	}
	return e.Revoke(ctx, id)
}

// Cleanup deletes credentials that expired before the given instant.
func (e *TokenEngine) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	n, err := e.store.DeleteExpiredBefore(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("security: removed %d credentials expired before %s", n, before.Format(time.RFC3339))
		e.emit(telemetrydomain.EventCredentialsCleaned, "", "", "", map[string]string{"count": fmt.Sprint(n)})
	}
	return n, nil
}

func (e *TokenEngine) emit(eventType, subject, credentialID string, kind domain.Kind, attrs map[string]string) {
	if e.events == nil {
		return
	}
	telemetry.EmitAsync(e.events, &telemetrydomain.Event{
		Type:         eventType,
		Subject:      subject,
		CredentialID: credentialID,
		Kind:         string(kind),
		Source:       "token_engine",
		Attributes:   attrs,
	})
}
