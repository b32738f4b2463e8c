package invalidation

import (
	"context"
	"errors"
	"strings"
	"sync"

	apidomain "session-control-plane/internal/apicredential/domain"
	identitydomain "session-control-plane/internal/identity/domain"
)

var errBoom = errors.New("boom")

type fakeRevoker struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeRevoker) RevokeAllForSubject(_ context.Context, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, username)
	if f.fail[username] {
		return 0, errBoom
	}
	return 1, nil
}

func (f *fakeRevoker) revoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeMembers struct {
	byRole  map[string][]string
	byRight map[string][]string
	err     error
}

func (f *fakeMembers) UsernamesByRole(_ context.Context, role string) ([]string, error) {
	return f.byRole[role], f.err
}

func (f *fakeMembers) UsernamesByRight(_ context.Context, authority string) ([]string, error) {
	return f.byRight[authority], f.err
}

type fakeUsers struct {
	users map[string]*identitydomain.User
	err   error
	// same, when set, is returned for every id.
	same *identitydomain.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*identitydomain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.same != nil {
		return f.same, nil
	}
	return f.users[id], nil
}

type fakeAPICreds struct {
	mu      sync.Mutex
	creds   []*apidomain.ApiCredential
	deleted []string
	listErr error
}

func (f *fakeAPICreds) ListByOwner(_ context.Context, owner string) ([]*apidomain.ApiCredential, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*apidomain.ApiCredential
	for _, c := range f.creds {
		if strings.EqualFold(c.Owner, owner) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeAPICreds) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func user(id, email string) *identitydomain.User {
	return &identitydomain.User{
		ID:               id,
		Email:            email,
		Enabled:          true,
		AccountNonLocked: true,
		Locale:           "en",
		Source:           identitydomain.SourceLocal,
		Roles:            []identitydomain.Role{{Name: "USER"}},
	}
}
