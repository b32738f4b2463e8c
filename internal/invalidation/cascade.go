package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apidomain "session-control-plane/internal/apicredential/domain"
	identitydomain "session-control-plane/internal/identity/domain"
	"session-control-plane/internal/identity/repository"
	"session-control-plane/internal/telemetry"
	telemetrydomain "session-control-plane/internal/telemetry/domain"
)

// Revoker deletes every session credential of a subject.
type Revoker interface {
	RevokeAllForSubject(ctx context.Context, username string) (int64, error)
}

// APICredentialStore is the slice of the API credential repository the deletion cascade needs.
type APICredentialStore interface {
	ListByOwner(ctx context.Context, owner string) ([]*apidomain.ApiCredential, error)
	Delete(ctx context.Context, id string) error
}

// Policy controls how bulk cascades react to a failing subject.
type Policy int

const (
	// FailFast stops at the first failing subject.
	FailFast Policy = iota
	// BestEffort attempts every subject and reports the first failure with the failure count.
	BestEffort
)

// Deps holds what a Cascade needs. Revoker and Members are required.
type Deps struct {
	Revoker  Revoker
	Detector *ChangeDetector
	Members  repository.MembershipQuery
	APICreds APICredentialStore
	Events   telemetry.EventEmitter
	Policy   Policy
}

// Cascade revokes sessions whose embedded identity facts went stale.
type Cascade struct {
	revoker  Revoker
	detector *ChangeDetector
	members  repository.MembershipQuery
	apiCreds APICredentialStore
	events   telemetry.EventEmitter
	policy   Policy

	tracer      trace.Tracer
	invalidated metric.Int64Counter
	failures    metric.Int64Counter
}

// NewCascade returns a Cascade. A nil Detector treats every user update as relevant.
func NewCascade(deps Deps) *Cascade {
	detector := deps.Detector
	if detector == nil {
		detector = NewChangeDetector(nil)
	}
	meter := otel.Meter("session-control-plane/invalidation")
	invalidated, err := meter.Int64Counter("sessions.invalidated", metric.WithDescription("Subjects whose sessions were invalidated, by scope."))
	if err != nil {
		log.Printf("invalidation: invalidated counter: %v", err)
	}
	failures, err := meter.Int64Counter("sessions.invalidation_failures", metric.WithDescription("Failed session invalidations, by scope."))
	if err != nil {
		log.Printf("invalidation: failure counter: %v", err)
	}
	return &Cascade{
		revoker:     deps.Revoker,
		detector:    detector,
		members:     deps.Members,
		apiCreds:    deps.APICreds,
		events:      deps.Events,
		policy:      deps.Policy,
		tracer:      otel.Tracer("session-control-plane/invalidation"),
		invalidated: invalidated,
		failures:    failures,
	}
}

// InvalidateForUsername revokes every session credential of username.
func (c *Cascade) InvalidateForUsername(ctx context.Context, username string) error {
	ctx, span := c.start(ctx, ScopeUsername, username)
	defer span.End()
	return c.finish(ctx, span, ScopeUsername, username, c.revokeOne(ctx, ScopeUsername, username, username))
}

// InvalidateOnUserUpdate revokes the sessions of candidate's committed username when the pending
// update touches a field tokens depend on. Call it before the update is persisted.
func (c *Cascade) InvalidateOnUserUpdate(ctx context.Context, candidate *identitydomain.User) error {
	prior := c.detector.FetchPriorState(ctx, candidate)
	if !HasRelevantChange(prior, candidate) {
		return nil
	}
	username := ""
	switch {
	case prior.Found:
		username = prior.User.Username()
	case candidate != nil:
		username = candidate.Username()
	}
	if username == "" {
		return nil
	}
	ctx, span := c.start(ctx, ScopeUserUpdate, username)
	defer span.End()
	span.SetAttributes(attribute.Bool("prior_found", prior.Found))
	return c.finish(ctx, span, ScopeUserUpdate, username, c.revokeOne(ctx, ScopeUserUpdate, username, username))
}

// InvalidateForRole revokes the sessions of every user currently holding role.
func (c *Cascade) InvalidateForRole(ctx context.Context, role string) error {
	return c.forMembers(ctx, ScopeRole, role, c.members.UsernamesByRole)
}

// InvalidateForRight revokes the sessions of every user holding authority through any role.
func (c *Cascade) InvalidateForRight(ctx context.Context, authority string) error {
	return c.forMembers(ctx, ScopeRight, authority, c.members.UsernamesByRight)
}

func (c *Cascade) forMembers(ctx context.Context, scope Scope, target string, query func(context.Context, string) ([]string, error)) error {
	ctx, span := c.start(ctx, scope, target)
	defer span.End()

	usernames, err := query(ctx, target)
	if err != nil {
		return c.finish(ctx, span, scope, target, &InvalidationError{Scope: scope, Target: target, Failed: 1, Total: 1, Err: err})
	}
	span.SetAttributes(attribute.Int("subjects", len(usernames)))
	return c.finish(ctx, span, scope, target, c.fanOut(ctx, scope, target, usernames))
}

// InvalidateForUserDeletion removes everything a deleted user could still authenticate with:
// the sessions of each owned API credential, the API credentials themselves, then the user's own sessions.
func (c *Cascade) InvalidateForUserDeletion(ctx context.Context, username string) error {
	ctx, span := c.start(ctx, ScopeUserDeletion, username)
	defer span.End()

	if c.apiCreds != nil {
		creds, err := c.apiCreds.ListByOwner(ctx, username)
		if err != nil {
			return c.finish(ctx, span, ScopeUserDeletion, username,
				&InvalidationError{Scope: ScopeUserDeletion, Target: username, Failed: 1, Total: 1, Err: err})
		}
		span.SetAttributes(attribute.Int("api_credentials", len(creds)))
		for _, cred := range creds {
			principal := cred.PrincipalName()
			if err := c.revokeOne(ctx, ScopeUserDeletion, username, principal); err != nil {
				return c.finish(ctx, span, ScopeUserDeletion, username, err)
			}
			if err := c.apiCreds.Delete(ctx, cred.ID); err != nil {
				return c.finish(ctx, span, ScopeUserDeletion, username,
					&InvalidationError{Scope: ScopeUserDeletion, Target: username, Subject: principal, Failed: 1, Total: 1, Err: err})
			}
		}
	}
	return c.finish(ctx, span, ScopeUserDeletion, username, c.revokeOne(ctx, ScopeUserDeletion, username, username))
}

// EnsureRoleUnused returns ErrStillInUse when any user holds role.
func (c *Cascade) EnsureRoleUnused(ctx context.Context, role string) error {
	return ensureUnused(ctx, "role", role, c.members.UsernamesByRole)
}

// EnsureRightUnused returns ErrStillInUse when any user holds authority through a role.
func (c *Cascade) EnsureRightUnused(ctx context.Context, authority string) error {
	return ensureUnused(ctx, "right", authority, c.members.UsernamesByRight)
}

func ensureUnused(ctx context.Context, kind, target string, query func(context.Context, string) ([]string, error)) error {
	usernames, err := query(ctx, target)
	if err != nil {
		return fmt.Errorf("invalidation: members of %s %q: %w", kind, target, err)
	}
	if len(usernames) > 0 {
		return fmt.Errorf("%w: %s %q is assigned to %d user(s)", ErrStillInUse, kind, target, len(usernames))
	}
	return nil
}

func (c *Cascade) fanOut(ctx context.Context, scope Scope, target string, usernames []string) error {
	var first *InvalidationError
	failed := 0
	for _, u := range usernames {
		err := c.revokeOne(ctx, scope, target, u)
		if err == nil {
			continue
		}
		var ie *InvalidationError
		if !errors.As(err, &ie) {
			ie = &InvalidationError{Scope: scope, Target: target, Subject: u, Err: err}
		}
		failed++
		if first == nil {
			first = ie
		}
		if c.policy == FailFast {
			break
		}
	}
	if first == nil {
		return nil
	}
	first.Failed = failed
	first.Total = len(usernames)
	return first
}

func (c *Cascade) revokeOne(ctx context.Context, scope Scope, target, username string) error {
	if strings.TrimSpace(username) == "" {
		return nil
	}
	n, err := c.revoker.RevokeAllForSubject(ctx, username)
	if err != nil {
		return &InvalidationError{Scope: scope, Target: target, Subject: username, Failed: 1, Total: 1, Err: err}
	}
	if c.invalidated != nil {
		c.invalidated.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", string(scope))))
	}
	if n > 0 {
		log.Printf("invalidation: revoked %d credential(s) of %s (%s %s)", n, username, scope, target)
	}
	return nil
}

func (c *Cascade) start(ctx context.Context, scope Scope, target string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "invalidation."+string(scope),
		trace.WithAttributes(attribute.String("scope", string(scope)), attribute.String("target", target)))
}

func (c *Cascade) finish(ctx context.Context, span trace.Span, scope Scope, target string, err error) error {
	if err == nil {
		c.emit(telemetrydomain.EventSessionsInvalidated, scope, target, nil)
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "invalidation failed")
	if c.failures != nil {
		c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", string(scope))))
	}
	log.Printf("invalidation: %v", err)
	c.emit(telemetrydomain.EventInvalidationFailed, scope, target, map[string]string{"error": err.Error()})
	return err
}

func (c *Cascade) emit(eventType string, scope Scope, target string, attrs map[string]string) {
	if c.events == nil {
		return
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["scope"] = string(scope)
	attrs["target"] = target
	telemetry.EmitAsync(c.events, &telemetrydomain.Event{
		Type:       eventType,
		Subject:    target,
		Source:     "invalidation",
		Attributes: attrs,
	})
}
