// Package config provides the process configuration of dolmetsch.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DOLMETSCH_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// Provider profiles, API keys and prompts are not part of this file: they
// live in the settings document inside the configured store.
package config

import "time"

// Config holds all configuration for dolmetsch.
type Config struct {
	Translate TranslateConfig `yaml:"translate"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MCP       MCPConfig       `yaml:"mcp"`
	Auth      AuthConfig      `yaml:"auth"`
}

// TranslateConfig holds request defaults. Zero values defer to the
// settings document.
type TranslateConfig struct {
	TargetLanguage string        `yaml:"target_language"`
	Stream         *bool         `yaml:"stream"`
	Timeout        time.Duration `yaml:"timeout"`     // default: 30s
	Retries        *int          `yaml:"retries"`     // default: from settings
	QueueSize      int           `yaml:"queue_size"`  // default: 64
	StoreResponses *bool         `yaml:"store_responses"`
}

// StorageConfig selects the kv backend.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory", "file", "postgres" or "sqlite", default: "file"
	Path     string         `yaml:"path"` // for type=file
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	Namespace      string `yaml:"namespace"`
	MaxConns       int32  `yaml:"max_conns"`        // default: 4
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls slog output and debug categories.
type LogConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Debug  string `yaml:"debug"`  // comma-separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// MCPConfig holds the MCP server settings.
type MCPConfig struct {
	Addr string `yaml:"addr"` // default: ":8081"
}

// AuthConfig holds authentication settings of the HTTP servers.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt"; default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
	Tier    string `yaml:"tier"`
}

// JWTConfig configures bearer token validation against a JWKS endpoint.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TierClaim   string        `yaml:"tier_claim"`   // default: "tier"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
}

// RateLimitConfig limits requests per authenticated subject. Zero disables
// the limit.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	Tiers             map[string]int `yaml:"tiers"` // tier -> requests per minute
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Translate: TranslateConfig{
			Timeout:   30 * time.Second,
			QueueSize: 64,
		},
		Storage: StorageConfig{
			Type: "file",
			Path: defaultDataPath("settings.json"),
			Postgres: PostgresConfig{
				MaxConns:       4,
				MigrateOnStart: true,
			},
			SQLite: SQLiteConfig{
				Path: defaultDataPath("dolmetsch.db"),
			},
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		MCP: MCPConfig{
			Addr: ":8081",
		},
		Auth: AuthConfig{
			Type: "none",
		},
	}
}
