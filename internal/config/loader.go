// Package config provides configuration loading for modelrouter.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// envPrefixes lists the sections picked up from the environment by
// LoadWithFile. Unrelated variables (PATH, HOME, ...) are ignored.
var envPrefixes = []string{"SERVER_", "LOGGING_", "OBSERVABILITY_", "ROUTER_", "CACHE_", "LLM_", "NATS_"}

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, ROUTER_EPSILON, etc.)
//  2. YAML config file (~/.config/modelrouter/config.yaml)
//  3. Hardcoded defaults (Default)
//
// The configPath parameter specifies the YAML file to load. If empty, uses default path.
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 or 0400 permissions.
//
// Path Validation: Only configuration files in allowed directories can be loaded:
//   - ~/.config/modelrouter/ (user's config directory)
//   - /etc/modelrouter/ (system-wide config directory)
//
// File Size Limit: Configuration files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// The section is everything before the first underscore, the field is the rest:
//
//	SERVER_PORT -> server.port
//	ROUTER_LINUCB_ALPHA -> router.linucb_alpha
//	CACHE_LLM_TTL -> cache.llm_ttl
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "modelrouter", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	return loadFromPath(configPath)
}

// loadFromPath loads defaults, the YAML file at path (if present) and the
// environment, then validates. It performs no directory allow-listing.
func loadFromPath(configPath string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configPath); err == nil {
		// Open file once and validate using file descriptor to avoid TOCTOU race
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over defaults so absent keys keep their default values.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKeyTransform maps SECTION_FIELD_NAME to section.field_name. Variables
// outside the known sections map to "" which koanf skips.
func envKeyTransform(s string) string {
	known := false
	for _, p := range envPrefixes {
		if strings.HasPrefix(s, p) {
			known = true
			break
		}
	}
	if !known {
		return ""
	}

	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureStateDir creates the router state directory if it doesn't exist.
// The directory is created with 0700 permissions (owner only).
func EnsureStateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "modelrouter"),
		"/etc/modelrouter",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/modelrouter/ or /etc/modelrouter/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
