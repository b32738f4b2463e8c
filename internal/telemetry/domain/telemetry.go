package domain

import "time"

// Event types emitted over the credential lifecycle.
const (
	EventCredentialMinted       = "credential.minted"
	EventCredentialRevoked      = "credential.revoked"
	EventCredentialVerifyFailed = "credential.verify_failed"
	EventCredentialsCleaned     = "credential.cleaned"
	EventSessionsInvalidated    = "sessions.invalidated"
	EventInvalidationFailed     = "sessions.invalidation_failed"
	EventAPICredentialCreated   = "api_credential.created"
	EventAPICredentialRevoked   = "api_credential.revoked"
	EventAPICredentialDeleted   = "api_credential.deleted"
	EventAPICredentialExpired   = "api_credential.expired"
)

// Event is one credential lifecycle fact. Empty fields are omitted on export.
type Event struct {
	Type         string
	Subject      string // username the event concerns
	CredentialID string
	Kind         string
	Source       string // emitting component, e.g. "token_engine"
	Attributes   map[string]string
	CreatedAt    time.Time
}
