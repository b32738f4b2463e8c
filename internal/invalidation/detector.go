// Package invalidation revokes session credentials when the identity facts they were minted
// from change: user edits, role and right edits, and account deletion.
package invalidation

import (
	"context"
	"log"

	"session-control-plane/internal/identity/domain"
)

// UserSnapshotReader reads the committed state of a user straight from storage.
type UserSnapshotReader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// PriorState is the committed version of a user before a pending update.
// Found is false when it could not be read; callers must then treat the change as relevant.
type PriorState struct {
	User  *domain.User
	Found bool
}

// ChangeDetector decides whether a pending user update affects issued sessions.
type ChangeDetector struct {
	users UserSnapshotReader
}

// NewChangeDetector returns a ChangeDetector reading prior state from users.
func NewChangeDetector(users UserSnapshotReader) *ChangeDetector {
	return &ChangeDetector{users: users}
}

// FetchPriorState loads the committed state of candidate. The returned user never aliases candidate:
// a reader that hands back the candidate pointer itself would hide every change, so that case,
// lookup failures and missing rows all yield an absent PriorState.
func (d *ChangeDetector) FetchPriorState(ctx context.Context, candidate *domain.User) PriorState {
	if candidate == nil || d.users == nil {
		return PriorState{}
	}
	prior, err := d.users.GetByID(ctx, candidate.ID)
	if err != nil {
		log.Printf("invalidation: read prior state of user %s: %v", candidate.ID, err)
		return PriorState{}
	}
	if prior == nil || prior == candidate {
		return PriorState{}
	}
	return PriorState{User: prior.Clone(), Found: true}
}

// HasRelevantChange reports whether candidate differs from prior in a field that session
// tokens depend on. Role changes are left to the role and right cascades.
func HasRelevantChange(prior PriorState, candidate *domain.User) bool {
	if !prior.Found || prior.User == nil || candidate == nil {
		return true
	}
	p := prior.User
	return p.Email != candidate.Email ||
		p.Locale != candidate.Locale ||
		p.Enabled != candidate.Enabled ||
		p.AccountNonLocked != candidate.AccountNonLocked ||
		p.Source != candidate.Source
}
