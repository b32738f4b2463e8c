// Package domain holds the identity model that session credentials are minted from:
// users, the roles they hold and the rights those roles grant.
package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Right is a single named authority.
type Right struct {
	Authority   string
	Description string
}

// Role groups rights. At most one role system-wide is the default role.
type Role struct {
	Name        string
	Description string
	Rights      []Right
	Protected   bool // blocks edits and deletion
	DefaultRole bool
}

// Authorities returns the authority strings granted by the role.
func (r *Role) Authorities() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Rights))
	for _, rt := range r.Rights {
		out = append(out, rt.Authority)
	}
	return out
}

// Source identifies where a user account originates.
type Source string

const (
	SourceLocal     Source = "local"
	SourceDirectory Source = "ldap"
)

// FederatedSource returns the source value for an account bridged from the named provider.
func FederatedSource(provider string) Source {
	return Source(strings.ToLower(strings.TrimSpace(provider)))
}

// Principal is the capability shared by human users and synthetic API principals.
type Principal interface {
	Username() string
	RoleNames() []string
	Authorities() []string
}

// TokenSubject is a Principal that can be written into session token claims.
type TokenSubject interface {
	Principal
	TokenNonce() string
	DisplayName() (given, family string)
	// NumericID reports the numeric user id when the subject has one.
	NumericID() (int64, bool)
}

// User is a human account. Email doubles as the username.
type User struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	Roles            []Role
	Enabled          bool
	AccountNonLocked bool
	Locale           string
	Source           Source
	// Nonce is embedded in every minted token and rotated on password change.
	Nonce     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) Username() string { return u.Email }

func (u *User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Authorities returns the de-duplicated, sorted union of rights across the user's roles.
func (u *User) Authorities() []string {
	seen := make(map[string]struct{})
	for _, r := range u.Roles {
		for _, rt := range r.Rights {
			seen[rt.Authority] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// HasAuthority reports whether any of the user's roles grants authority.
func (u *User) HasAuthority(authority string) bool {
	for _, r := range u.Roles {
		for _, rt := range r.Rights {
			if rt.Authority == authority {
				return true
			}
		}
	}
	return false
}

func (u *User) TokenNonce() string { return u.Nonce }

func (u *User) DisplayName() (string, string) { return u.FirstName, u.LastName }

func (u *User) NumericID() (int64, bool) {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Clone returns a deep copy that shares no slices with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Roles != nil {
		c.Roles = make([]Role, len(u.Roles))
		for i, r := range u.Roles {
			c.Roles[i] = r
			if r.Rights != nil {
				c.Roles[i].Rights = append([]Right(nil), r.Rights...)
			}
		}
	}
	return &c
}
