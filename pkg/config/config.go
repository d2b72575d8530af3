// Package config loads and validates portal configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Identity IdentityConfig
	Webhook  WebhookConfig
	Policy   PolicyConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds the Postgres connection settings for the mirrored
// user store
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis settings for the distributed rate limiter
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// IdentityConfig holds the identity-provider contract: OIDC endpoints plus
// the claim path carrying the role. The claim path is dashboard-side
// configuration, so it is an explicit setting here rather than a constant.
type IdentityConfig struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	SessionCookie string
	RoleClaimPath string
	// RoleRefreshWindow bounds how long a cached principal (and therefore a
	// stale role claim) may be served before re-verification
	RoleRefreshWindow time.Duration
	CacheSize         int
}

// WebhookConfig holds the lifecycle webhook settings
type WebhookConfig struct {
	// Secret is the shared signing secret, "whsec_" prefixed base64
	Secret string
	// Tolerance rejects deliveries whose timestamp is too far from now
	Tolerance time.Duration
	// RateLimit caps deliveries per minute per source
	RateLimit int
	// ReconcileSchedule is the cron spec for the mirror sweep
	ReconcileSchedule string
}

// PolicyConfig holds authorization policy settings
type PolicyConfig struct {
	// RouteFile optionally adds route rules from a YAML file at startup
	RouteFile string
	// SelfAssignableRoles is the allow-list for onboarding role selection.
	// Defaults to every role, which preserves the provider-dashboard
	// behavior of accepting any client-supplied role; operators narrowing
	// this to {student, faculty} turn self-service admin elevation off.
	SelfAssignableRoles []string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("PORTAL_HOST", "0.0.0.0"),
			Port:            getEnv("PORTAL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("PORTAL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("PORTAL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("PORTAL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("PORTAL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("PORTAL_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("PORTAL_DATABASE_URL", ""),
			MaxOpenConns: getEnvInt("PORTAL_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("PORTAL_DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:      getEnv("PORTAL_REDIS_URL", ""),
			Password: getEnv("PORTAL_REDIS_PASSWORD", ""),
			DB:       getEnvInt("PORTAL_REDIS_DB", 0),
		},
		Identity: IdentityConfig{
			IssuerURL:         getEnv("PORTAL_OIDC_ISSUER", ""),
			ClientID:          getEnv("PORTAL_OIDC_CLIENT_ID", ""),
			ClientSecret:      getEnv("PORTAL_OIDC_CLIENT_SECRET", ""),
			RedirectURL:       getEnv("PORTAL_OIDC_REDIRECT_URL", ""),
			SessionCookie:     getEnv("PORTAL_SESSION_COOKIE", "__session"),
			RoleClaimPath:     getEnv("PORTAL_ROLE_CLAIM", "unsafe_metadata.role"),
			RoleRefreshWindow: getEnvDuration("PORTAL_ROLE_REFRESH_WINDOW", time.Minute),
			CacheSize:         getEnvInt("PORTAL_SESSION_CACHE_SIZE", 4096),
		},
		Webhook: WebhookConfig{
			Secret:            getEnv("PORTAL_WEBHOOK_SECRET", ""),
			Tolerance:         getEnvDuration("PORTAL_WEBHOOK_TOLERANCE", 5*time.Minute),
			RateLimit:         getEnvInt("PORTAL_WEBHOOK_RATE_LIMIT", 120),
			ReconcileSchedule: getEnv("PORTAL_RECONCILE_SCHEDULE", "*/15 * * * *"),
		},
		Policy: PolicyConfig{
			RouteFile:           getEnv("PORTAL_ROUTE_POLICY_FILE", ""),
			SelfAssignableRoles: getEnvList("PORTAL_SELF_ASSIGNABLE_ROLES", []string{"super_admin", "exam_coordinator", "faculty", "student"}),
		},
		LogLevel: getEnv("PORTAL_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Identity.IssuerURL == "" {
		return fmt.Errorf("OIDC issuer URL is required")
	}
	if c.Identity.ClientID == "" {
		return fmt.Errorf("OIDC client ID is required")
	}
	if c.Identity.RoleClaimPath == "" {
		return fmt.Errorf("role claim path is required")
	}
	if c.Identity.RoleRefreshWindow <= 0 {
		return fmt.Errorf("role refresh window must be positive")
	}

	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook signing secret is required")
	}

	if len(c.Policy.SelfAssignableRoles) == 0 {
		return fmt.Errorf("self-assignable role list must not be empty")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
