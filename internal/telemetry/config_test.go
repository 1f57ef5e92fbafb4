package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/modelrouter/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.NoError(t, cfg.Validate())

	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "router-a",
		Endpoint:        "otel.internal:4318",
		Protocol:        ProtocolHTTP,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "router-a", cfg.ServiceName)
	assert.Equal(t, "otel.internal:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.False(t, cfg.Insecure, "remote endpoints use TLS")
	require.NoError(t, cfg.Validate())

	local := FromObservability(config.ObservabilityConfig{}, "")
	assert.False(t, local.Enabled)
	assert.True(t, local.Insecure)
	assert.Equal(t, "dev", local.ServiceVersion)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"missing service", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "protocol"},
		{"plaintext remote", func(c *Config) { c.Endpoint = "collector.example.com:4317" }, "plaintext"},
		{"tls remote", func(c *Config) { c.Endpoint = "collector.example.com:4317"; c.Insecure = false }, ""},
		{"rate above one", func(c *Config) { c.SampleRate = 1.5 }, "sample rate"},
		{"negative rate", func(c *Config) { c.SampleRate = -0.1 }, "sample rate"},
		{"zero interval", func(c *Config) { c.ExportInterval = 0 }, "export interval"},
		{"interval ignored without metrics", func(c *Config) { c.MetricsEnabled = false; c.ExportInterval = 0 }, ""},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = time.Duration(0) }, "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
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

func TestIsLoopback(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":          true,
		"127.0.0.1:4317":          true,
		"127.0.1.1":               true,
		"[::1]:4317":              true,
		"::1":                     true,
		"http://localhost:4318":   true,
		"https://otel.example.io": false,
		"10.0.0.5:4317":           false,
		"localhost.evil.com:4317": false,
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, isLoopback(endpoint), endpoint)
	}
}
