package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:5000", cfg.ServerAddress())
	assert.Equal(t, 10*time.Second, cfg.Server.CallTimeout)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, "code_chunks", cfg.Embedding.Collection)
	assert.Equal(t, []string{".tsx", ".ts", ".html", ".css"}, cfg.Workspace.Extensions)
	assert.Equal(t, "runs.db", filepath.Base(cfg.RunsDBPath()))
	assert.Equal(t, "calls.db", filepath.Base(cfg.CallsDBPath()))
	assert.Equal(t, "index.db", filepath.Base(cfg.IndexPath()))
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 6000
  callTimeout: 3s
llm:
  model: custom-model
agent:
  maxIterations: 4
  maxStalls: 0
workspace:
  extensions: [".go"]
`), 0o644))

	t.Setenv(EnvGroqAPIKey, "gsk_test")
	t.Setenv(EnvWorkspace, "/srv/shop")
	t.Setenv(EnvServerURL, "http://tools:6000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.CallTimeout)
	assert.Equal(t, "custom-model", cfg.LLM.Model)
	assert.Equal(t, "gsk_test", cfg.LLM.APIKey)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, 0, cfg.Agent.MaxStalls)
	assert.Equal(t, []string{".go"}, cfg.Workspace.Extensions)
	assert.Equal(t, "/srv/shop", cfg.Workspace.Root)
	assert.Equal(t, "http://tools:6000", cfg.Server.URL)

	// Unset sections keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "http", cfg.Embedding.Backend)
}

func TestLoadFileKeyWinsOverEnvKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  apiKey: from-file\n"), 0o644))
	t.Setenv(EnvGroqAPIKey, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.LLM.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := Load(missing)
	assert.Error(t, err, "an explicit path must exist")

	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfig, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "server: [",
		"bad store":      "store:\n  type: redis\n",
		"bad backend":    "llm:\n  backend: carrier-pigeon\n",
		"bad embedding":  "embedding:\n  backend: magic\n",
		"zero iteration": "agent:\n  maxIterations: 0\n",
		"bad port":       "server:\n  port: 70000\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Backend = "claude-cli"
	cfg.Agent.MaxStalls = 5
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-cli", loaded.LLM.Backend)
	assert.Equal(t, 5, loaded.Agent.MaxStalls)
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "work"), expandHome("~/work"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/abs", expandHome("/abs"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
}

func TestNewLogger(t *testing.T) {
	logger, err := LogConfig{Level: "debug", Format: "json"}.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = LogConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger()
	assert.Error(t, err)
}
