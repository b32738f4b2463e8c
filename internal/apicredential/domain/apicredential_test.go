package domain

import (
	"testing"
	"time"

	identitydomain "session-control-plane/internal/identity/domain"
)

func TestPrincipalName(t *testing.T) {
	c := &ApiCredential{ID: "42", Owner: "alice@example.com"}
	if got := c.PrincipalName(); got != "alice@example.com-api-token-42" {
		t.Errorf("PrincipalName = %q", got)
	}
}

func TestApiPrincipal(t *testing.T) {
	c := &ApiCredential{
		ID:     "7",
		Owner:  "bob",
		Rights: []identitydomain.Right{{Authority: "USER_READ"}, {Authority: "API_DEVELOPER"}},
	}
	p := ApiPrincipal{Credential: c}
	if p.Username() != "bob-api-token-7" {
		t.Errorf("Username = %q", p.Username())
	}
	given, family := p.DisplayName()
	if given != "API-Token" || family != "bob" {
		t.Errorf("DisplayName = %q %q", given, family)
	}
	auth := p.Authorities()
	if len(auth) != 2 || auth[0] != "API_DEVELOPER" || auth[1] != "USER_READ" {
		t.Errorf("Authorities = %v", auth)
	}
	if _, ok := p.NumericID(); ok {
		t.Error("API principal should have no numeric id")
	}
	if p.TokenNonce() != "" || p.RoleNames() != nil {
		t.Error("API principal should have no nonce or roles")
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	testCases := []struct {
		name       string
		status     Status
		validUntil time.Time
		want       bool
	}{
		{"yesterday active", StatusActive, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"today active", StatusActive, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), false},
		{"tomorrow active", StatusActive, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), false},
		{"yesterday revoked", StatusRevoked, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &ApiCredential{Status: tc.status, ValidUntil: tc.validUntil}
			if got := c.Overdue(now); got != tc.want {
				t.Errorf("Overdue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDayAndEndOfDay(t *testing.T) {
	in := time.Date(2026, 12, 31, 23, 59, 0, 0, time.FixedZone("x", -3600))
	if got := Day(in); !got.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day = %v", got)
	}
	if got := EndOfDay(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)); !got.Equal(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("EndOfDay = %v", got)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusRevoked, StatusExpired} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("PAUSED").Valid() {
		t.Error("PAUSED should not be valid")
	}
}
