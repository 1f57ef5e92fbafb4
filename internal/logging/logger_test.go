package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// capture builds a logger writing JSON into a buffer.
func capture(t *testing.T, mutate func(*Config)) (*zap.Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Caller = false
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	logger, err := newLogger(cfg, zapcore.AddSync(&buf), nil)
	require.NoError(t, err)
	return logger, &buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		out = append(out, rec)
	}
	return out
}

func TestNewLogger_JSONOutput(t *testing.T) {
	logger, buf := capture(t, nil)

	logger.Info("arm selected", zap.String("arm", "gpt-4.1"), zap.Float64("score", 0.75))
	logger.Debug("hidden at info")

	recs := records(t, buf)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "arm selected", rec["msg"])
	assert.Equal(t, "gpt-4.1", rec["arm"])
	assert.Equal(t, 0.75, rec["score"])
	assert.Equal(t, "modelrouter", rec["service"])
	assert.Contains(t, rec, "ts")
}

func TestNewLogger_TraceLevel(t *testing.T) {
	logger, buf := capture(t, func(c *Config) { c.Level = TraceLevel })

	logger.Log(TraceLevel, "posterior draw", zap.Float64("sample", 0.4))

	recs := records(t, buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "trace", recs[0]["level"])
}

func TestNewLogger_Redaction(t *testing.T) {
	logger, buf := capture(t, nil)

	logger.With(zap.String("llm_api_key", "sk-abcdefghijklmnopqrstu")).Info("client configured",
		zap.String("Authorization", "Bearer abc.def"),
		zap.String("note", "called with sk-abcdefghijklmnopqrstu today"),
		zap.String("model", "gpt-4.1"),
	)
	logger.Warn("retrying with bearer xyz123")

	recs := records(t, buf)
	require.Len(t, recs, 2)

	assert.Equal(t, redacted, recs[0]["llm_api_key"])
	assert.Equal(t, redacted, recs[0]["Authorization"])
	assert.Equal(t, "called with [REDACTED] today", recs[0]["note"])
	assert.Equal(t, "gpt-4.1", recs[0]["model"])
	assert.Equal(t, "retrying with [REDACTED]", recs[1]["msg"])
	assert.NotContains(t, buf.String(), "sk-abcdefghijklmnopqrstu")
}

func TestNewLogger_RedactionDisabled(t *testing.T) {
	logger, buf := capture(t, func(c *Config) { c.Redact.Enabled = false })

	logger.Info("client configured", zap.String("token", "plain"))

	assert.Equal(t, "plain", records(t, buf)[0]["token"])
}

func TestNewLogger_SamplingKeepsWarnings(t *testing.T) {
	logger, buf := capture(t, func(c *Config) {
		c.Sampling.Initial = 2
		c.Sampling.Thereafter = 1000
	})

	for i := 0; i < 10; i++ {
		logger.Info("cache miss")
		logger.Warn("publish failed")
	}

	var info, warn int
	for _, rec := range records(t, buf) {
		switch rec["level"] {
		case "info":
			info++
		case "warn":
			warn++
		}
	}
	assert.Equal(t, 2, info)
	assert.Equal(t, 10, warn)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	logger, buf := capture(t, func(c *Config) { c.Format = "console" })

	logger.Info("ready", zap.String("password", "hunter2"))

	out := buf.String()
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "hunter2")
}

func TestNewLogger_Outputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stdout = false
	cfg.OTEL = true

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log output")

	logger, err := NewLogger(cfg, noop.NewLoggerProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() { logger.Info("exported only") })

	cfg.Format = "yaml"
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err)
}
