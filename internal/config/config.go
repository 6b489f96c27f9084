// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the insecure shared secret used when JWT_SECRET is unset
// outside production.
const DevJWTSecret = "dev-secret-change-in-production"

// AuthConfig holds authentication and identity provider configuration.
type AuthConfig struct {
	// OIDC / JWKS configuration
	IssuerURL        string        // OIDC issuer URL used for discovery
	JWKSURL          string        // Override JWKS URL (if no .well-known discovery)
	Audience         string        // Required JWT audience claim
	AllowedIssuers   []string      // Accepted issuers (defaults to [IssuerURL])
	JWKSCacheTTL     time.Duration // JWKS cache duration (default: 1h)
	JWKSMinRefresh   time.Duration // minimum spacing of unseen-kid refreshes (default: 10s)
	JWKSFetchTimeout time.Duration // per-fetch timeout (default: 5s)

	// Shared-secret configuration
	JWTSecret         string // HS256 secret; also signs elevated credentials
	SymmetricIssuer   string // `iss` required on HS256 credentials (default: tenant-gate)
	SymmetricFallback bool   // accept third-party HS256 credentials alongside OIDC (default: true)

	ClockLeeway    time.Duration // tolerance applied to exp
	BootstrapAdmin string        // External ID (sub) provisioned as platform_admin
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != "" || a.JWKSURL != ""
}

// Validate checks that the auth configuration is internally consistent.
func (a *AuthConfig) Validate() error {
	if !a.OIDCEnabled() && a.JWTSecret == "" {
		return fmt.Errorf("no verification path: set AUTH_ISSUER_URL, AUTH_JWKS_URL or JWT_SECRET")
	}
	if a.IssuerURL != "" && a.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}
	return nil
}

// ImpersonationConfig controls elevated operator sessions.
type ImpersonationConfig struct {
	TTL        time.Duration // lifetime of elevated credentials (default and max: 30m)
	Role       string        // tenant role granted while impersonating (default: admin)
	ReturnPath string        // redirect hint after ending; {tenant_id} is substituted
}

// UsageConfig controls quota enforcement.
type UsageConfig struct {
	DefaultPlan string         // plan assigned to new principals (default: free)
	Timezone    *time.Location // calendar-month anchor without a subscription (default: UTC)
	Strict      bool           // metered routes consume atomically (USAGE_STRICT)
	PlansFile   string         // YAML plan catalog; empty uses the embedded catalog
}

// Config holds the configuration for the gate server.
type Config struct {
	ListenAddr        string // HTTP listen address (default ":8080")
	MetaDBPath        string // path to the SQLite store (default "gate.sqlite")
	DatabaseURL       string // Postgres DSN; when set it replaces SQLite
	RedisURL          string // Redis URL for the revocation store; empty keeps it in memory
	TLSCertFile       string // TLS certificate file path (optional)
	TLSKeyFile        string // TLS private key file path (optional)
	AllowInsecureHTTP bool   // allow non-TLS listener in production (for trusted TLS termination)
	LogLevel          string // log level: debug, info, warn, error (default "info")
	Env               string // environment: "development" (default) or "production"

	// IOTimeout bounds every store round trip (default 5s).
	IOTimeout time.Duration

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	Auth          AuthConfig
	Impersonation ImpersonationConfig
	Usage         UsageConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// UsesPostgres reports whether DATABASE_URL selects the Postgres store.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:  os.Getenv("LISTEN_ADDR"),
		MetaDBPath:  os.Getenv("META_DB_PATH"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		TLSCertFile: os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:  os.Getenv("TLS_KEY_FILE"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Env:         os.Getenv("ENV"),
	}
	cfg.AllowInsecureHTTP = parseBoolEnvDefault("ALLOW_INSECURE_HTTP", false)
	cfg.IOTimeout = cfg.durationEnv("IO_TIMEOUT", 5*time.Second)

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_RPS %q", v))
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_BURST %q", v))
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	// Auth config
	cfg.Auth = AuthConfig{
		IssuerURL:         os.Getenv("AUTH_ISSUER_URL"),
		JWKSURL:           os.Getenv("AUTH_JWKS_URL"),
		Audience:          os.Getenv("AUTH_AUDIENCE"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SymmetricIssuer:   os.Getenv("AUTH_SYMMETRIC_ISSUER"),
		SymmetricFallback: parseBoolEnvDefault("AUTH_SYMMETRIC_FALLBACK", true),
		BootstrapAdmin:    os.Getenv("AUTH_BOOTSTRAP_ADMIN"),
		JWKSCacheTTL:      cfg.durationEnv("AUTH_JWKS_CACHE_TTL", time.Hour),
		JWKSMinRefresh:    cfg.durationEnv("AUTH_JWKS_MIN_REFRESH", 10*time.Second),
		JWKSFetchTimeout:  cfg.durationEnv("AUTH_JWKS_FETCH_TIMEOUT", 5*time.Second),
		ClockLeeway:       cfg.durationEnv("AUTH_CLOCK_LEEWAY", 0),
	}
	if v := os.Getenv("AUTH_ALLOWED_ISSUERS"); v != "" {
		cfg.Auth.AllowedIssuers = splitList(v)
	}
	if len(cfg.Auth.AllowedIssuers) == 0 && cfg.Auth.IssuerURL != "" {
		cfg.Auth.AllowedIssuers = []string{cfg.Auth.IssuerURL}
	}
	if cfg.Auth.SymmetricIssuer == "" {
		cfg.Auth.SymmetricIssuer = "tenant-gate"
	}

	// Impersonation
	cfg.Impersonation = ImpersonationConfig{
		TTL:        cfg.durationEnv("IMPERSONATION_TTL", 30*time.Minute),
		Role:       os.Getenv("IMPERSONATION_ROLE"),
		ReturnPath: os.Getenv("IMPERSONATION_RETURN_PATH"),
	}
	if cfg.Impersonation.TTL > 30*time.Minute {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("IMPERSONATION_TTL %s exceeds the 30m maximum and is clamped", cfg.Impersonation.TTL))
		cfg.Impersonation.TTL = 30 * time.Minute
	}

	// Usage
	cfg.Usage = UsageConfig{
		DefaultPlan: os.Getenv("DEFAULT_PLAN"),
		Strict:      parseBoolEnvDefault("USAGE_STRICT", false),
		PlansFile:   os.Getenv("PLANS_FILE"),
		Timezone:    time.UTC,
	}
	if v := os.Getenv("BILLING_TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return nil, fmt.Errorf("BILLING_TIMEZONE %q: %w", v, err)
		}
		cfg.Usage.Timezone = loc
	}
	if cfg.Usage.DefaultPlan == "" {
		cfg.Usage.DefaultPlan = "free"
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "gate.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if !cfg.Auth.OIDCEnabled() {
		cfg.Warnings = append(cfg.Warnings, "OIDC is not configured: only HS256 credentials will be accepted")
	}
	if cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = DevJWTSecret
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set: using insecure default. Set JWT_SECRET in production!")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == DevJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be set in production (ENV=production): it signs elevated credentials")
		}
		if len(cfg.Auth.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
		}
		if err := cfg.Auth.Validate(); err != nil {
			return nil, err
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}

	return cfg, nil
}

// durationEnv parses key as a time.Duration, falling back to def (with a
// warning) when the value is malformed or negative.
func (c *Config) durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s %q, using %s", key, v, def))
		return def
	}
	return d
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return compactNonEmpty(parts)
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment (env vars take precedence). A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
