package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace": TraceLevel,
		"TRACE": TraceLevel,
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"Warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings("debug", "Console")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Redact.Enabled)

	cfg, err = FromSettings("", "")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	_, err = FromSettings("verbose", "")
	assert.Error(t, err)
	_, err = FromSettings("", "xml")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no outputs", func(c *Config) { c.Stdout = false }, "at least one output"},
		{"otel only", func(c *Config) { c.Stdout = false; c.OTEL = true }, ""},
		{"bad format", func(c *Config) { c.Format = "xml" }, "invalid log format"},
		{"level too low", func(c *Config) { c.Level = TraceLevel - 1 }, "invalid log level"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "tick"},
		{"negative initial", func(c *Config) { c.Sampling.Initial = -1 }, "negative"},
		{"tick ignored when sampling off", func(c *Config) { c.Sampling.Enabled = false; c.Sampling.Tick = 0 }, ""},
		{"bad pattern", func(c *Config) { c.Redact.Patterns = []string{"("} }, "redaction pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
