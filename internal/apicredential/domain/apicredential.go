package domain

import (
	"sort"
	"strings"
	"time"

	identitydomain "session-control-plane/internal/identity/domain"
)

// Status is the lifecycle state of an API credential.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// apiDisplayName is the given name written into tokens minted for API principals.
const apiDisplayName = "API-Token"

// ApiCredential is a long-lived token a user issues for programmatic access.
// Token is only populated on the value returned by creation; it is never stored.
type ApiCredential struct {
	ID          string
	Owner       string
	Description string
	Status      Status
	ValidUntil  time.Time // calendar date, UTC midnight
	Rights      []identitydomain.Right
	Token       string
	CreatedAt   time.Time
}

// PrincipalName returns the synthetic username API sessions for credential id are minted under.
func PrincipalName(owner, id string) string {
	return owner + "-api-token-" + id
}

// PrincipalName returns the synthetic username of c.
func (c *ApiCredential) PrincipalName() string {
	return PrincipalName(c.Owner, c.ID)
}

// Authorities returns the sorted authority names granted to c.
func (c *ApiCredential) Authorities() []string {
	out := make([]string, 0, len(c.Rights))
	for _, r := range c.Rights {
		out = append(out, r.Authority)
	}
	sort.Strings(out)
	return out
}

// Overdue reports whether c is still ACTIVE although its last valid day is before the day of now.
func (c *ApiCredential) Overdue(now time.Time) bool {
	return c.Status == StatusActive && c.ValidUntil.Before(Day(now))
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the first instant after the UTC calendar day of t.
func EndOfDay(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1)
}

// ApiPrincipal is the identity API-kind session tokens are minted for.
type ApiPrincipal struct {
	Credential *ApiCredential
}

var _ identitydomain.TokenSubject = ApiPrincipal{}

func (p ApiPrincipal) Username() string { return p.Credential.PrincipalName() }

// RoleNames is empty: API principals carry rights directly.
func (p ApiPrincipal) RoleNames() []string { return nil }

func (p ApiPrincipal) Authorities() []string { return p.Credential.Authorities() }

// TokenNonce is empty; API tokens are not bound to the owner's nonce.
func (p ApiPrincipal) TokenNonce() string { return "" }

func (p ApiPrincipal) DisplayName() (string, string) {
	return apiDisplayName, p.Credential.Owner
}

func (p ApiPrincipal) NumericID() (int64, bool) { return 0, false }

// SameOwner reports whether username owns c, ignoring case.
func (c *ApiCredential) SameOwner(username string) bool {
	return strings.EqualFold(c.Owner, username)
}
