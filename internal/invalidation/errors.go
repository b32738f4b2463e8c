package invalidation

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenInvalidationFailed matches every *InvalidationError via errors.Is.
	ErrTokenInvalidationFailed = errors.New("token invalidation failed")
	// ErrStillInUse is returned when a role or right about to be deleted is still held by users.
	ErrStillInUse = errors.New("still in use")
)

// Scope names what a cascade was invalidating for.
type Scope string

const (
	ScopeUsername     Scope = "username"
	ScopeUserUpdate   Scope = "user_update"
	ScopeUserDeletion Scope = "user_deletion"
	ScopeRole         Scope = "role"
	ScopeRight        Scope = "right"
)

// InvalidationError reports a failed cascade. Subject is the username whose revocation failed,
// empty when the failure happened before any revocation (e.g. the membership query).
type InvalidationError struct {
	Scope   Scope
	Target  string
	Subject string
	Failed  int // subjects that could not be invalidated
	Total   int // subjects the cascade covered
	Err     error
}

func (e *InvalidationError) Error() string {
	msg := fmt.Sprintf("%s for %s %q", ErrTokenInvalidationFailed, e.Scope, e.Target)
	if e.Subject != "" && e.Subject != e.Target {
		msg += fmt.Sprintf(" at subject %q", e.Subject)
	}
	if e.Failed > 1 {
		msg += fmt.Sprintf(" (%d of %d subjects failed)", e.Failed, e.Total)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidationError) Unwrap() error { return e.Err }

func (e *InvalidationError) Is(target error) bool { return target == ErrTokenInvalidationFailed }
