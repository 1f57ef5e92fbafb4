package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temporary directory and returns the
// allowed config directory inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "modelrouter")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `server:
  port: 9300
  host: 127.0.0.1
router:
  contextual_enabled: true
  epsilon: 0.1
  entropy_threshold: 0.2
  entropy_window: 5
  linucb_dimension: 4
cache:
  llm_ttl: 15m
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.Router.ContextualEnabled)
	assert.Equal(t, 0.1, cfg.Router.Epsilon)
	assert.Equal(t, 0.2, cfg.Router.EntropyThreshold)
	assert.Equal(t, 5, cfg.Router.EntropyWindow)
	assert.Equal(t, 4, cfg.Router.LinUCBDimension)
	assert.Equal(t, 15*time.Minute, cfg.Cache.LLMTTL)

	// Absent keys keep defaults.
	assert.True(t, cfg.Router.ThompsonEnabled)
	assert.Equal(t, 1.0, cfg.Router.Alpha0)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  epsilon: 0.1\n"), 0600))

	t.Setenv("ROUTER_EPSILON", "0.3")
	t.Setenv("SERVER_PORT", "9400")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Router.Epsilon)
	assert.Equal(t, 9400, cfg.Server.Port)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9300\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9300\n"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_InvalidValuesRejected(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  epsilon: 2\n"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epsilon")
}

func TestEnvKeyTransform(t *testing.T) {
	tests := map[string]string{
		"SERVER_PORT":                       "server.port",
		"ROUTER_LINUCB_ALPHA":               "router.linucb_alpha",
		"ROUTER_LINUCB_CONDITION_THRESHOLD": "router.linucb_condition_threshold",
		"CACHE_LLM_TTL":                     "cache.llm_ttl",
		"PATH":                              "",
		"HOME":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKeyTransform(in), in)
	}
}
