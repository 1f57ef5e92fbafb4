// Package config provides configuration loading for modelrouter.
//
// Configuration is loaded from environment variables with sensible defaults,
// optionally layered on top of a YAML file (see LoadWithFile). Router tunables
// that may change at runtime are published through a Live cell.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the complete modelrouter configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Router        RouterConfig        `koanf:"router"`
	Cache         CacheConfig         `koanf:"cache"`
	LLM           LLMConfig           `koanf:"llm"`
	NATS          NATSConfig          `koanf:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"` // grpc or http/protobuf
}

// RouterConfig holds the bandit router flags and tunables.
//
// Field names are flat so that ROUTER_<FIELD> environment variables map
// directly onto them.
type RouterConfig struct {
	ThompsonEnabled   bool   `koanf:"thompson_enabled"`
	ContextualEnabled bool   `koanf:"contextual_enabled"`
	PersistEnabled    bool   `koanf:"persist_enabled"`
	StateDir          string `koanf:"state_dir"`

	// Beta prior for Thompson arms.
	Alpha0 float64 `koanf:"alpha0"`
	Beta0  float64 `koanf:"beta0"`

	// Epsilon is the forced-exploration probability (0 disables).
	Epsilon float64 `koanf:"epsilon"`

	// Collapse reset: entropy below EntropyThreshold for EntropyWindow
	// consecutive updates resets every arm. Zero disables.
	EntropyThreshold float64 `koanf:"entropy_threshold"`
	EntropyWindow    int     `koanf:"entropy_window"`

	LinUCBAlpha              float64 `koanf:"linucb_alpha"`
	LinUCBDimension          int     `koanf:"linucb_dimension"`
	LinUCBRecomputeInterval  int     `koanf:"linucb_recompute_interval"`
	LinUCBConditionThreshold float64 `koanf:"linucb_condition_threshold"`
}

// CacheConfig holds sizing for the named in-memory caches.
type CacheConfig struct {
	LLMMaxSize       int           `koanf:"llm_max_size"`
	LLMTTL           time.Duration `koanf:"llm_ttl"`
	DecisionsMaxSize int           `koanf:"decisions_max_size"`
	DecisionsTTL     time.Duration `koanf:"decisions_ttl"`
	CleanupInterval  time.Duration `koanf:"cleanup_interval"`
}

// LLMConfig holds the OpenAI-compatible provider endpoint used to execute arms.
type LLMConfig struct {
	BaseURL   string        `koanf:"base_url"`
	APIKey    Secret        `koanf:"api_key"`
	RateLimit float64       `koanf:"rate_limit"` // requests per second
	Burst     int           `koanf:"burst"`
	Timeout   time.Duration `koanf:"timeout"`
}

// NATSConfig holds the reward feedback channel configuration.
// An empty URL disables the channel.
type NATSConfig struct {
	URL             string `koanf:"url"`
	RewardSubject   string `koanf:"reward_subject"`
	DecisionSubject string `koanf:"decision_subject"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "modelrouter",
			Endpoint:        "localhost:4317",
		},
		Router: DefaultRouterConfig(),
		Cache: CacheConfig{
			LLMMaxSize:       1000,
			LLMTTL:           time.Hour,
			DecisionsMaxSize: 10000,
			DecisionsTTL:     30 * time.Minute,
			CleanupInterval:  time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:   "http://localhost:8000/v1",
			RateLimit: 5,
			Burst:     10,
			Timeout:   60 * time.Second,
		},
		NATS: NATSConfig{
			RewardSubject:   "modelrouter.rewards",
			DecisionSubject: "modelrouter.decisions",
		},
	}
}

// DefaultRouterConfig returns router defaults. Thompson routing is on,
// contextual routing and persistence are off.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ThompsonEnabled:   true,
		ContextualEnabled: false,
		PersistEnabled:    false,
		StateDir:          defaultStateDir(),
		Alpha0:            1.0,
		Beta0:             1.0,
		LinUCBAlpha:       0.8,
		LinUCBDimension:   8,
	}
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//   - SERVER_HOST / SERVER_PORT: HTTP listen address (default: localhost:9191)
//   - SERVER_SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 10s)
//   - LOG_LEVEL / LOG_FORMAT: log level and encoder (default: info, json)
//   - OTEL_ENABLE: Enable OpenTelemetry (default: false)
//   - OTEL_SERVICE_NAME: Service name for traces (default: modelrouter)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector (default: localhost:4317)
//   - OTEL_EXPORTER_OTLP_PROTOCOL: grpc or http/protobuf (default: grpc)
//   - ROUTER_*: router flags and tunables, see RouterConfig
//   - CACHE_LLM_MAX_SIZE / CACHE_LLM_TTL: LLM response cache (default: 1000, 1h)
//   - CACHE_DECISIONS_MAX_SIZE / CACHE_DECISIONS_TTL: pending decisions (default: 10000, 30m)
//   - CACHE_CLEANUP_INTERVAL: janitor sweep interval (default: 1m)
//   - LLM_BASE_URL, LLM_API_KEY, LLM_RATE_LIMIT, LLM_BURST, LLM_TIMEOUT
//   - NATS_URL, NATS_REWARD_SUBJECT, NATS_DECISION_SUBJECT
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("Server port:", cfg.Server.Port)
func Load() *Config {
	d := Default()

	return &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", d.Server.Host),
			Port:            getEnvInt("SERVER_PORT", d.Server.Port),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", d.Server.ShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", d.Logging.Level),
			Format: getEnvString("LOG_FORMAT", d.Logging.Format),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", d.Observability.EnableTelemetry),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", d.Observability.ServiceName),
			Endpoint:        getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", d.Observability.Endpoint),
			Protocol:        getEnvString("OTEL_EXPORTER_OTLP_PROTOCOL", d.Observability.Protocol),
		},
		Router: RouterConfig{
			ThompsonEnabled:          getEnvBool("ROUTER_THOMPSON_ENABLED", d.Router.ThompsonEnabled),
			ContextualEnabled:        getEnvBool("ROUTER_CONTEXTUAL_ENABLED", d.Router.ContextualEnabled),
			PersistEnabled:           getEnvBool("ROUTER_PERSIST_ENABLED", d.Router.PersistEnabled),
			StateDir:                 getEnvString("ROUTER_STATE_DIR", d.Router.StateDir),
			Alpha0:                   getEnvFloat("ROUTER_ALPHA0", d.Router.Alpha0),
			Beta0:                    getEnvFloat("ROUTER_BETA0", d.Router.Beta0),
			Epsilon:                  getEnvFloat("ROUTER_EPSILON", d.Router.Epsilon),
			EntropyThreshold:         getEnvFloat("ROUTER_ENTROPY_THRESHOLD", d.Router.EntropyThreshold),
			EntropyWindow:            getEnvInt("ROUTER_ENTROPY_WINDOW", d.Router.EntropyWindow),
			LinUCBAlpha:              getEnvFloat("ROUTER_LINUCB_ALPHA", d.Router.LinUCBAlpha),
			LinUCBDimension:          getEnvInt("ROUTER_LINUCB_DIMENSION", d.Router.LinUCBDimension),
			LinUCBRecomputeInterval:  getEnvInt("ROUTER_LINUCB_RECOMPUTE_INTERVAL", d.Router.LinUCBRecomputeInterval),
			LinUCBConditionThreshold: getEnvFloat("ROUTER_LINUCB_CONDITION_THRESHOLD", d.Router.LinUCBConditionThreshold),
		},
		Cache: CacheConfig{
			LLMMaxSize:       getEnvInt("CACHE_LLM_MAX_SIZE", d.Cache.LLMMaxSize),
			LLMTTL:           getEnvDuration("CACHE_LLM_TTL", d.Cache.LLMTTL),
			DecisionsMaxSize: getEnvInt("CACHE_DECISIONS_MAX_SIZE", d.Cache.DecisionsMaxSize),
			DecisionsTTL:     getEnvDuration("CACHE_DECISIONS_TTL", d.Cache.DecisionsTTL),
			CleanupInterval:  getEnvDuration("CACHE_CLEANUP_INTERVAL", d.Cache.CleanupInterval),
		},
		LLM: LLMConfig{
			BaseURL:   getEnvString("LLM_BASE_URL", d.LLM.BaseURL),
			APIKey:    Secret(getEnvString("LLM_API_KEY", "")),
			RateLimit: getEnvFloat("LLM_RATE_LIMIT", d.LLM.RateLimit),
			Burst:     getEnvInt("LLM_BURST", d.LLM.Burst),
			Timeout:   getEnvDuration("LLM_TIMEOUT", d.LLM.Timeout),
		},
		NATS: NATSConfig{
			URL:             getEnvString("NATS_URL", ""),
			RewardSubject:   getEnvString("NATS_REWARD_SUBJECT", d.NATS.RewardSubject),
			DecisionSubject: getEnvString("NATS_DECISION_SUBJECT", d.NATS.DecisionSubject),
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
//   - Any router tunable is out of range
//   - A cache size or TTL is negative
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if err := c.Router.Validate(); err != nil {
		return fmt.Errorf("router: %w", err)
	}

	if c.Cache.LLMMaxSize < 0 || c.Cache.DecisionsMaxSize < 0 {
		return errors.New("cache sizes must not be negative")
	}
	if c.Cache.LLMTTL < 0 || c.Cache.DecisionsTTL < 0 {
		return errors.New("cache TTLs must not be negative")
	}

	if c.LLM.RateLimit < 0 || c.LLM.Burst < 0 {
		return errors.New("llm rate limit and burst must not be negative")
	}

	return nil
}

// Validate checks router tunables. A reload that fails validation must not
// replace the active tunables.
func (r *RouterConfig) Validate() error {
	if r.Alpha0 <= 0 || r.Beta0 <= 0 {
		return fmt.Errorf("beta prior must be positive, got alpha0=%v beta0=%v", r.Alpha0, r.Beta0)
	}
	if r.Epsilon < 0 || r.Epsilon > 1 {
		return fmt.Errorf("epsilon must be between 0 and 1, got %v", r.Epsilon)
	}
	if r.EntropyThreshold < 0 {
		return fmt.Errorf("entropy threshold must not be negative, got %v", r.EntropyThreshold)
	}
	if r.EntropyWindow < 0 {
		return fmt.Errorf("entropy window must not be negative, got %d", r.EntropyWindow)
	}
	if r.LinUCBAlpha < 0 {
		return fmt.Errorf("linucb alpha must not be negative, got %v", r.LinUCBAlpha)
	}
	if r.LinUCBDimension <= 0 {
		return fmt.Errorf("linucb dimension must be positive, got %d", r.LinUCBDimension)
	}
	if r.LinUCBRecomputeInterval < 0 {
		return fmt.Errorf("linucb recompute interval must not be negative, got %d", r.LinUCBRecomputeInterval)
	}
	if r.LinUCBConditionThreshold < 0 {
		return fmt.Errorf("linucb condition threshold must not be negative, got %v", r.LinUCBConditionThreshold)
	}
	if r.PersistEnabled && r.StateDir == "" {
		return errors.New("state_dir is required when persistence is enabled")
	}
	return nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "modelrouter", "state")
	}
	return filepath.Join(home, ".config", "modelrouter", "state")
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
