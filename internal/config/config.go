// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAdminRights is the authority set that makes a role an administrator role when ADMIN_RIGHTS is unset.
var DefaultAdminRights = []string{
	"API_DEVELOPER",
	"USER_CREATE", "USER_READ", "USER_UPDATE", "USER_DELETE",
	"ROLE_CREATE", "ROLE_READ", "ROLE_UPDATE", "ROLE_DELETE",
	"RIGHT_READ", "RIGHT_UPDATE",
	"TRANSLATION_CREATE", "TRANSLATION_READ", "TRANSLATION_UPDATE", "TRANSLATION_DELETE",
}

// Invalidation policies accepted by INVALIDATION_POLICY.
const (
	PolicyFailFast   = "fail-fast"
	PolicyBestEffort = "best-effort"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC host listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTIssuer is the iss claim written into and required from every session token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// AccessTokenExpiration is the ACCESS credential lifetime in seconds.
	AccessTokenExpiration int64 `mapstructure:"ACCESS_TOKEN_EXPIRATION"`
	// RefreshTokenExpiration is the REFRESH credential lifetime in seconds.
	RefreshTokenExpiration int64 `mapstructure:"REFRESH_TOKEN_EXPIRATION"`
	// DefaultAPITokenExpiration is the validity in seconds applied when an API credential request omits valid_until.
	DefaultAPITokenExpiration int64 `mapstructure:"DEFAULT_API_TOKEN_EXPIRATION"`
	// MaxSessionExpirationTime is the grace in seconds an expired credential row is kept before cleanup deletes it.
	MaxSessionExpirationTime int64 `mapstructure:"MAX_SESSION_EXPIRATION_TIME"`
	// CleanupInterval is the maintenance loop period in seconds (cmd/worker).
	CleanupInterval int64 `mapstructure:"CLEANUP_INTERVAL"`
	// APITokenRetentionDays is how long revoked/expired API credential rows are kept after valid_until.
	APITokenRetentionDays int `mapstructure:"API_TOKEN_RETENTION_DAYS"`
	// CredentialSealingKey is an optional hex-encoded 32-byte key; when set, signing secrets are sealed at rest.
	CredentialSealingKey string `mapstructure:"CREDENTIAL_SEALING_KEY"`
	// AdminRights is a comma-separated list of authorities a role must carry to count as administrator.
	AdminRights string `mapstructure:"ADMIN_RIGHTS"`
	// InvalidationPolicy is "fail-fast" (default) or "best-effort" for bulk cascades.
	InvalidationPolicy string `mapstructure:"INVALIDATION_POLICY"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "session-control-plane")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", 86400)
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", 2592000)
	v.SetDefault("DEFAULT_API_TOKEN_EXPIRATION", 2592000)
	v.SetDefault("MAX_SESSION_EXPIRATION_TIME", 86400)
	v.SetDefault("CLEANUP_INTERVAL", 3600)
	v.SetDefault("API_TOKEN_RETENTION_DAYS", 30)
	v.SetDefault("CREDENTIAL_SEALING_KEY", "")
	v.SetDefault("ADMIN_RIGHTS", strings.Join(DefaultAdminRights, ","))
	v.SetDefault("INVALIDATION_POLICY", PolicyFailFast)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "session-control-plane")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return nil, errors.New("config: JWT_ISSUER must be set")
	}
	if cfg.AccessTokenExpiration <= 0 || cfg.RefreshTokenExpiration <= 0 || cfg.DefaultAPITokenExpiration <= 0 {
		return nil, errors.New("config: token expirations must be positive")
	}
	if cfg.InvalidationPolicy != PolicyFailFast && cfg.InvalidationPolicy != PolicyBestEffort {
		return nil, fmt.Errorf("config: INVALIDATION_POLICY must be %q or %q", PolicyFailFast, PolicyBestEffort)
	}
	if cfg.CredentialSealingKey != "" {
		if _, err := cfg.SealingKey(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// AccessTTL returns the ACCESS credential lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiration) * time.Second
}

// RefreshTTL returns the REFRESH credential lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpiration) * time.Second
}

// DefaultAPITokenTTL returns the validity applied to API credentials created without valid_until.
func (c *Config) DefaultAPITokenTTL() time.Duration {
	return time.Duration(c.DefaultAPITokenExpiration) * time.Second
}

// SessionGrace returns how long expired credential rows survive before cleanup. Never negative.
func (c *Config) SessionGrace() time.Duration {
	if c.MaxSessionExpirationTime < 0 {
		return 0
	}
	return time.Duration(c.MaxSessionExpirationTime) * time.Second
}

// CleanupEvery returns the maintenance loop period. Returns 1h if unset or invalid.
func (c *Config) CleanupEvery() time.Duration {
	if c.CleanupInterval <= 0 {
		return time.Hour
	}
	return time.Duration(c.CleanupInterval) * time.Second
}

// SealingKey decodes CredentialSealingKey. Returns (nil, nil) when unset.
func (c *Config) SealingKey() ([]byte, error) {
	if c.CredentialSealingKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimSpace(c.CredentialSealingKey))
	if err != nil {
		return nil, fmt.Errorf("config: CREDENTIAL_SEALING_KEY must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("config: CREDENTIAL_SEALING_KEY must decode to 32 bytes")
	}
	return key, nil
}

// AdminRightsList returns the administrator authorities from the comma-separated config.
func (c *Config) AdminRightsList() []string {
	if c == nil || c.AdminRights == "" {
		return nil
	}
	parts := strings.Split(c.AdminRights, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BestEffortInvalidation reports whether bulk cascades should continue past individual failures.
func (c *Config) BestEffortInvalidation() bool {
	return c.InvalidationPolicy == PolicyBestEffort
}
