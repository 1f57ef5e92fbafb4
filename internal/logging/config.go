package logging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below zap's DebugLevel and is used for per-draw router
// detail that is too noisy for debug.
const TraceLevel = zapcore.DebugLevel - 1

// Config controls how NewLogger builds its core.
type Config struct {
	Level  zapcore.Level
	Format string // json or console

	// Stdout and OTEL select the outputs; at least one must be on.
	Stdout bool
	OTEL   bool

	Caller   bool
	Sampling SamplingConfig
	Redact   RedactConfig

	// Fields are added to every record.
	Fields map[string]string
}

// SamplingConfig limits repeated debug and info messages per Tick: the
// first Initial of each message are logged, then every Thereafter-th.
// Warnings and errors bypass sampling.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// RedactConfig lists field keys whose values are replaced and regular
// expressions whose matches are masked inside string values and messages.
// Key matching is case-insensitive and by substring, so "api_key" also
// covers "llm_api_key".
type RedactConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns JSON info-level logging to stdout with sampling
// and redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stdout: true,
		Caller: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 100,
		},
		Redact: RedactConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key", "apikey",
				"authorization", "bearer", "credential",
			},
			Patterns: []string{
				`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
				`sk-[A-Za-z0-9_-]{16,}`,
			},
		},
		Fields: map[string]string{
			"service": "modelrouter",
		},
	}
}

// FromSettings builds a config from the level and format strings carried in
// the service configuration. Empty values keep the defaults. When OTEL is
// on, NewLogger also needs a non-nil provider for records to be exported.
func FromSettings(level, format string) (*Config, error) {
	cfg := NewDefaultConfig()
	if level != "" {
		l, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = l
	}
	if format != "" {
		cfg.Format = strings.ToLower(format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values NewLogger cannot honour.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid log format %q (want json or console)", c.Format)
	}
	if !c.Stdout && !c.OTEL {
		return errors.New("at least one output (stdout or otel) must be enabled")
	}
	if c.Level < TraceLevel || c.Level > zapcore.FatalLevel {
		return fmt.Errorf("invalid log level %d", c.Level)
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return errors.New("sampling tick must be positive")
		}
		if c.Sampling.Initial < 0 || c.Sampling.Thereafter < 0 {
			return errors.New("sampling counts cannot be negative")
		}
	}
	for _, p := range c.Redact.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
	}
	return nil
}

// ParseLevel parses trace, debug, info, warn, error, dpanic, panic or fatal.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.EqualFold(s, "trace") {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// encodeLevel prints TraceLevel as "trace" and defers to zap otherwise.
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
