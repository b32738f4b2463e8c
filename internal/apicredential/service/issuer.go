package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"session-control-plane/internal/apicredential/domain"
	"session-control-plane/internal/apicredential/repository"
	credentialdomain "session-control-plane/internal/credential/domain"
	identitydomain "session-control-plane/internal/identity/domain"
	"session-control-plane/internal/security"
	"session-control-plane/internal/telemetry"
	telemetrydomain "session-control-plane/internal/telemetry/domain"
)

// Sentinel errors for the issuer; callers map them to their transport's status codes.
var (
	ErrNoUserContext        = errors.New("no authenticated user")
	ErrInvalidRequest       = errors.New("invalid api credential request")
	ErrDuplicateDescription = errors.New("api credential description already in use")
	ErrInsufficientRights   = errors.New("requested rights exceed the owner's rights")
	ErrInvalidExpiry        = errors.New("valid_until must not be in the past")
	ErrInvalidState         = errors.New("api credential is not active")
	ErrUnsupportedOperation = errors.New("unsupported operation on api credential")
	ErrNotAllowed           = errors.New("api credential belongs to another user")
	ErrNotFound             = errors.New("api credential not found")
)

const maxDescriptionLength = 255

// CreateRequest is the input to Create. A zero ValidUntil means "use the default validity".
type CreateRequest struct {
	Description string
	Rights      []string
	ValidUntil  time.Time
}

// Validate checks the request shape; business rules are checked by Create.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Description, validation.Required, validation.Length(1, maxDescriptionLength)),
		validation.Field(&r.Rights, validation.By(noBlankEntries)),
	)
}

func noBlankEntries(value interface{}) error {
	items, _ := value.([]string)
	for _, s := range items {
		if strings.TrimSpace(s) == "" {
			return errors.New("must not contain blank entries")
		}
	}
	return nil
}

// TokenMinter is the part of the token engine the issuer needs.
type TokenMinter interface {
	Mint(ctx context.Context, subject identitydomain.TokenSubject, kind credentialdomain.Kind, opts security.MintOptions) (string, error)
	RevokeAllForSubject(ctx context.Context, username string) (int64, error)
}

// SessionInvalidator revokes every session of a username.
type SessionInvalidator interface {
	InvalidateForUsername(ctx context.Context, username string) error
}

// RightLookup resolves an authority to its stored right.
type RightLookup interface {
	GetByAuthority(ctx context.Context, authority string) (*identitydomain.Right, error)
}

// Issuer creates, revokes and deletes API credentials.
type Issuer struct {
	repo            repository.Repository
	rights          RightLookup
	tokens          TokenMinter
	sessions        SessionInvalidator
	events          telemetry.EventEmitter
	defaultValidity time.Duration
	nowF            func() time.Time
}

// NewIssuer returns an Issuer. defaultValidity applies when a request has no ValidUntil.
func NewIssuer(
	repo repository.Repository,
	rights RightLookup,
	tokens TokenMinter,
	sessions SessionInvalidator,
	events telemetry.EventEmitter,
	defaultValidity time.Duration,
) *Issuer {
	return &Issuer{
		repo:            repo,
		rights:          rights,
		tokens:          tokens,
		sessions:        sessions,
		events:          events,
		defaultValidity: defaultValidity,
		nowF:            time.Now,
	}
}

func (s *Issuer) today() time.Time {
	return domain.Day(s.nowF())
}

// Create issues a new API credential for owner. The returned credential carries the token;
// it cannot be retrieved again. Validation failures leave nothing behind.
func (s *Issuer) Create(ctx context.Context, owner identitydomain.Principal, req CreateRequest) (*domain.ApiCredential, error) {
	if owner == nil || owner.Username() == "" {
		return nil, ErrNoUserContext
	}
	req.Description = strings.TrimSpace(req.Description)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	username := owner.Username()

	existing, err := s.repo.GetByOwnerAndDescription(ctx, username, req.Description)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateDescription
	}

	rights, err := s.grantable(ctx, owner, req.Rights)
	if err != nil {
		return nil, err
	}

	today := s.today()
	validUntil := domain.Day(req.ValidUntil)
	if req.ValidUntil.IsZero() {
		validUntil = domain.Day(today.Add(s.defaultValidity))
	}
	if validUntil.Before(today) {
		return nil, ErrInvalidExpiry
	}

	cred := &domain.ApiCredential{
		ID:          uuid.New().String(),
		Owner:       username,
		Description: req.Description,
		Status:      domain.StatusActive,
		ValidUntil:  validUntil,
		Rights:      rights,
		CreatedAt:   s.nowF().UTC(),
	}
	token, err := s.tokens.Mint(ctx, domain.ApiPrincipal{Credential: cred}, credentialdomain.KindAPI, security.MintOptions{
		DeviceTag: cred.Description,
		ExpiresAt: domain.EndOfDay(validUntil),
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		if _, rerr := s.tokens.RevokeAllForSubject(ctx, cred.PrincipalName()); rerr != nil {
			log.Printf("apicredential: revoke token of unsaved credential %s: %v", cred.ID, rerr)
		}
		if errors.Is(err, repository.ErrDuplicateDescription) {
			return nil, ErrDuplicateDescription
		}
		return nil, err
	}
	cred.Token = token
	s.emit(telemetrydomain.EventAPICredentialCreated, cred, nil)
	return cred, nil
}

// grantable resolves requested to stored rights, requiring each to be held by owner.
func (s *Issuer) grantable(ctx context.Context, owner identitydomain.Principal, requested []string) ([]identitydomain.Right, error) {
	held := make(map[string]bool)
	for _, a := range owner.Authorities() {
		held[a] = true
	}
	seen := make(map[string]bool, len(requested))
	out := make([]identitydomain.Right, 0, len(requested))
	for _, authority := range requested {
		authority = strings.TrimSpace(authority)
		if seen[authority] {
			continue
		}
		seen[authority] = true
		if !held[authority] {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientRights, authority)
		}
		rt, err := s.rights.GetByAuthority(ctx, authority)
		if err != nil {
			return nil, err
		}
		if rt == nil {
			return nil, fmt.Errorf("%w: unknown right %s", ErrInsufficientRights, authority)
		}
		out = append(out, *rt)
	}
	if len(out) == 0 {
		return nil, ErrInsufficientRights
	}
	return out, nil
}

// Update always fails: API credentials are immutable apart from revocation through Patch.
func (s *Issuer) Update(ctx context.Context, id string, req CreateRequest) (*domain.ApiCredential, error) {
	return nil, ErrUnsupportedOperation
}

// Patch applies a partial update. The only supported change is {"status": "REVOKED"} on an
// ACTIVE credential; it revokes the credential's sessions and ends its validity today.
func (s *Issuer) Patch(ctx context.Context, id string, fields map[string]string) (*domain.ApiCredential, error) {
	if len(fields) != 1 {
		return nil, ErrUnsupportedOperation
	}
	status, ok := fields["status"]
	if !ok || domain.Status(strings.ToUpper(strings.TrimSpace(status))) != domain.StatusRevoked {
		return nil, ErrUnsupportedOperation
	}
	cred, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNotFound
	}
	if cred.Status != domain.StatusActive {
		return nil, ErrInvalidState
	}
	if err := s.sessions.InvalidateForUsername(ctx, cred.PrincipalName()); err != nil {
		return nil, err
	}
	today := s.today()
	if err := s.repo.UpdateStatus(ctx, cred.ID, domain.StatusRevoked, today); err != nil {
		return nil, err
	}
	cred.Status = domain.StatusRevoked
	cred.ValidUntil = today
	s.emit(telemetrydomain.EventAPICredentialRevoked, cred, nil)
	return cred, nil
}

// DeleteByID removes owner's credential id together with its sessions.
func (s *Issuer) DeleteByID(ctx context.Context, owner identitydomain.Principal, id string) error {
	if owner == nil || owner.Username() == "" {
		return ErrNoUserContext
	}
	cred, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cred == nil {
		return ErrNotFound
	}
	if !cred.SameOwner(owner.Username()) {
		return ErrNotAllowed
	}
	if err := s.sessions.InvalidateForUsername(ctx, cred.PrincipalName()); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, cred.ID); err != nil {
		return err
	}
	s.emit(telemetrydomain.EventAPICredentialDeleted, cred, nil)
	return nil
}

// Find lists credentials matching f. Tokens are never included.
func (s *Issuer) Find(ctx context.Context, f repository.Filter) ([]*domain.ApiCredential, error) {
	return s.repo.List(ctx, f)
}

// ExpireOverdue marks ACTIVE credentials whose last valid day has passed as EXPIRED and revokes
// their sessions. It stops at the first failure; the next run picks up the rest.
func (s *Issuer) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListActiveValidUntilBefore(ctx, s.today())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, cred := range overdue {
		if err := s.sessions.InvalidateForUsername(ctx, cred.PrincipalName()); err != nil {
			return n, err
		}
		if err := s.repo.UpdateStatus(ctx, cred.ID, domain.StatusExpired, cred.ValidUntil); err != nil {
			return n, err
		}
		cred.Status = domain.StatusExpired
		s.emit(telemetrydomain.EventAPICredentialExpired, cred, nil)
		n++
	}
	if n > 0 {
		log.Printf("apicredential: expired %d overdue credential(s)", n)
	}
	return n, nil
}

// PurgeStale deletes revoked and expired credentials whose validity ended more than retention ago.
func (s *Issuer) PurgeStale(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	n, err := s.repo.DeleteInactiveValidUntilBefore(ctx, domain.Day(s.today().Add(-retention)))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("apicredential: purged %d stale credential(s)", n)
	}
	return n, nil
}

func (s *Issuer) emit(eventType string, cred *domain.ApiCredential, attrs map[string]string) {
	if s.events == nil {
		return
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["api_credential_id"] = cred.ID
	attrs["status"] = string(cred.Status)
	attrs["valid_until"] = cred.ValidUntil.Format(time.DateOnly)
	telemetry.EmitAsync(s.events, &telemetrydomain.Event{
		Type:       eventType,
		Subject:    cred.Owner,
		Kind:       string(credentialdomain.KindAPI),
		Source:     "api_credential_issuer",
		Attributes: attrs,
	})
}
