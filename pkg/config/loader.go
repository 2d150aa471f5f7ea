package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, DOLMETSCH_CONFIG env, ./dolmetsch.yaml,
//     $XDG_CONFIG_HOME/dolmetsch/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. DOLMETSCH_CONFIG environment variable
// 3. ./dolmetsch.yaml in the current directory
// 4. $XDG_CONFIG_HOME/dolmetsch/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DOLMETSCH_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{"dolmetsch.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "dolmetsch", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps DOLMETSCH_* environment variables to config
// fields. Malformed numbers and durations are errors.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DOLMETSCH_TARGET_LANGUAGE"); v != "" {
		cfg.Translate.TargetLanguage = v
	}
	if v := os.Getenv("DOLMETSCH_STREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOLMETSCH_STREAM: %w", err)
		}
		cfg.Translate.Stream = &b
	}
	if v := os.Getenv("DOLMETSCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOLMETSCH_TIMEOUT: %w", err)
		}
		cfg.Translate.Timeout = d
	}
	if v := os.Getenv("DOLMETSCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOLMETSCH_RETRIES: %w", err)
		}
		cfg.Translate.Retries = &n
	}
	if v := os.Getenv("DOLMETSCH_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("DOLMETSCH_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("DOLMETSCH_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("DOLMETSCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DOLMETSCH_DEBUG"); v != "" {
		cfg.Log.Debug = v
	}
	if v := os.Getenv("DOLMETSCH_MCP_ADDR"); v != "" {
		cfg.MCP.Addr = v
	}
	if v := os.Getenv("DOLMETSCH_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// auth.api_keys[].key_file -> auth.api_keys[].key
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// defaultDataPath places name in the per-user data directory.
func defaultDataPath(name string) string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "dolmetsch", name)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "dolmetsch", name)
	}
	return name
}
