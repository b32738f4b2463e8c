// Package domain defines the persisted record behind every signed session token.
package domain

import "time"

// Kind is a credential's role in the session hierarchy.
type Kind string

const (
	KindRefresh Kind = "REFRESH"
	KindAccess  Kind = "ACCESS"
	KindAPI     Kind = "API"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRefresh, KindAccess, KindAPI:
		return true
	}
	return false
}

// Credential backs one signed token. ID is the token's kid header.
type Credential struct {
	ID string
	// SigningSecret is generated per credential and never reused.
	SigningSecret []byte
	Username      string
	Kind          Kind
	IssuedAt      time.Time
	ExpiresAt     time.Time
	DeviceTag     string
	ParentID      string // ACCESS only; the REFRESH credential that spawned it
}

// Expired reports whether the credential is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// LastUsed derives a REFRESH credential's last use from its ACCESS children:
// the latest IssuedAt among children still live at now. ok is false when there are none.
func LastUsed(children []*Credential, now time.Time) (last time.Time, ok bool) {
	for _, c := range children {
		if c == nil || c.Expired(now) {
			continue
		}
		if !ok || c.IssuedAt.After(last) {
			last, ok = c.IssuedAt, true
		}
	}
	return last, ok
}
