package app

import (
	"context"
	"errors"
	"testing"

	identitydomain "session-control-plane/internal/identity/domain"
)

type userMap map[string]*identitydomain.User

func (m userMap) GetByUsername(_ context.Context, username string) (*identitydomain.User, error) {
	if username == "broken" {
		return nil, errors.New("db down")
	}
	return m[username], nil
}

func TestNonceLookup(t *testing.T) {
	users := userMap{"alice": {Email: "alice", Nonce: "n-1"}}
	nonces := NonceLookup(users)
	ctx := context.Background()

	if got, err := nonces(ctx, "alice"); err != nil || got != "n-1" {
		t.Errorf("alice = %q, %v", got, err)
	}
	if got, err := nonces(ctx, "ghost"); err != nil || got != "" {
		t.Errorf("ghost = %q, %v; want empty nonce", got, err)
	}
	if _, err := nonces(ctx, "broken"); err == nil {
		t.Error("lookup error should propagate")
	}
}

func TestSubjectLookup(t *testing.T) {
	users := userMap{"alice": {Email: "alice"}}
	subjects := SubjectLookup(users)
	ctx := context.Background()

	s, err := subjects(ctx, "alice")
	if err != nil || s == nil || s.Username() != "alice" {
		t.Errorf("alice = %v, %v", s, err)
	}
	s, err = subjects(ctx, "ghost")
	if err != nil || s != nil {
		t.Errorf("ghost = %v, %v; want untyped nil subject", s, err)
	}
}
