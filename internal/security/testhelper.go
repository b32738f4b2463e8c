package security

import (
	"time"

	"session-control-plane/internal/credential/repository"
)

// Test settings for unit tests only. Do not use in production.
const (
	TestIssuer     = "test-issuer"
	TestAccessTTL  = 15 * time.Minute
	TestRefreshTTL = 24 * time.Hour
)

// NewTestTokenEngine returns a TokenEngine over an in-memory credential store.
// For unit tests only. Callers must not use in production.
func NewTestTokenEngine() (*TokenEngine, *repository.MemoryRepository) {
	store := repository.NewMemoryRepository()
	return NewTokenEngine(store, EngineConfig{
		Issuer:     TestIssuer,
		AccessTTL:  TestAccessTTL,
		RefreshTTL: TestRefreshTTL,
	}), store
}
