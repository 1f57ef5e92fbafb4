package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9191, cfg.Server.Port)
				assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
				assert.False(t, cfg.Observability.EnableTelemetry, "telemetry disabled by default")
				assert.Equal(t, "modelrouter", cfg.Observability.ServiceName)

				assert.True(t, cfg.Router.ThompsonEnabled)
				assert.False(t, cfg.Router.ContextualEnabled)
				assert.False(t, cfg.Router.PersistEnabled)
				assert.Equal(t, 1.0, cfg.Router.Alpha0)
				assert.Equal(t, 1.0, cfg.Router.Beta0)
				assert.Equal(t, 0.0, cfg.Router.Epsilon)
				assert.Equal(t, 0.8, cfg.Router.LinUCBAlpha)
				assert.Equal(t, 8, cfg.Router.LinUCBDimension)

				assert.Equal(t, 1000, cfg.Cache.LLMMaxSize)
				assert.Equal(t, time.Hour, cfg.Cache.LLMTTL)
				assert.Equal(t, "modelrouter.rewards", cfg.NATS.RewardSubject)
				assert.Empty(t, cfg.NATS.URL)
			},
		},
		{
			name: "environment variable overrides",
			env: map[string]string{
				"SERVER_PORT":                      "8080",
				"SERVER_SHUTDOWN_TIMEOUT":          "5s",
				"OTEL_SERVICE_NAME":                "test-service",
				"ROUTER_THOMPSON_ENABLED":          "false",
				"ROUTER_EPSILON":                   "0.25",
				"ROUTER_ENTROPY_WINDOW":            "3",
				"ROUTER_LINUCB_RECOMPUTE_INTERVAL": "10",
				"CACHE_LLM_TTL":                    "10m",
				"LLM_API_KEY":                      "sk-test",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, "test-service", cfg.Observability.ServiceName)
				assert.False(t, cfg.Router.ThompsonEnabled)
				assert.Equal(t, 0.25, cfg.Router.Epsilon)
				assert.Equal(t, 3, cfg.Router.EntropyWindow)
				assert.Equal(t, 10, cfg.Router.LinUCBRecomputeInterval)
				assert.Equal(t, 10*time.Minute, cfg.Cache.LLMTTL)
				assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
			},
		},
		{
			name: "invalid values fall back to defaults",
			env: map[string]string{
				"SERVER_PORT":    "not-a-port",
				"ROUTER_EPSILON": "lots",
				"CACHE_LLM_TTL":  "forever",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9191, cfg.Server.Port)
				assert.Equal(t, 0.0, cfg.Router.Epsilon)
				assert.Equal(t, time.Hour, cfg.Cache.LLMTTL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			tt.validate(t, Load())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "port too low", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }, wantErr: "shutdown timeout"},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: "service name required",
		},
		{name: "non-positive prior", mutate: func(c *Config) { c.Router.Alpha0 = 0 }, wantErr: "beta prior"},
		{name: "epsilon above one", mutate: func(c *Config) { c.Router.Epsilon = 1.5 }, wantErr: "epsilon"},
		{name: "negative window", mutate: func(c *Config) { c.Router.EntropyWindow = -1 }, wantErr: "entropy window"},
		{name: "zero dimension", mutate: func(c *Config) { c.Router.LinUCBDimension = 0 }, wantErr: "dimension"},
		{
			name: "persistence without state dir",
			mutate: func(c *Config) {
				c.Router.PersistEnabled = true
				c.Router.StateDir = ""
			},
			wantErr: "state_dir",
		},
		{name: "negative cache size", mutate: func(c *Config) { c.Cache.LLMMaxSize = -1 }, wantErr: "cache sizes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	assert.True(t, s.IsSet())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	assert.Equal(t, "sk-very-secret", s.Value())
	assert.False(t, Secret("").IsSet())
}

func TestEnsureStateDir(t *testing.T) {
	dir := t.TempDir() + "/nested/state"
	require.NoError(t, EnsureStateDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Error(t, EnsureStateDir(""))
}
