// Package config holds scout's settings: built-in defaults, an optional
// YAML file and environment overrides. Command-line flags are applied on
// top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvGroqAPIKey   = "GROQ_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvServerURL    = "SCOUT_SERVER_URL"
	EnvWorkspace    = "SCOUT_WORKSPACE"
	EnvConfig       = "SCOUT_CONFIG"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"` // default 5000
	Host string `yaml:"host"` // default "127.0.0.1"
	// URL is where clients reach the tool server.
	URL string `yaml:"url"` // default "http://127.0.0.1:5000"
	// CallTimeout bounds each tool call made by clients.
	CallTimeout time.Duration `yaml:"callTimeout"` // default 10s
}

type StoreConfig struct {
	Type    string `yaml:"type"`    // "bolt" or "memory"
	DataDir string `yaml:"dataDir"` // default "~/.scout/data"
}

type LLMConfig struct {
	Backend     string        `yaml:"backend"` // "chat" or "claude-cli"
	BaseURL     string        `yaml:"baseURL"` // default Groq's OpenAI-compatible endpoint
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"` // default "llama-3.3-70b-versatile"
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`   // default 60s
	ClaudeCLI   string        `yaml:"claudeCLI"` // default "claude"
}

type AgentConfig struct {
	MaxIterations int `yaml:"maxIterations"` // default 10
	MaxStalls     int `yaml:"maxStalls"`     // default 3, 0 disables
	// SystemPromptFile replaces the built-in system prompt. The file may
	// contain a {{tools}} placeholder.
	SystemPromptFile string `yaml:"systemPromptFile"`
}

type EmbeddingConfig struct {
	Backend    string        `yaml:"backend"`    // "http" or "openai"
	URL        string        `yaml:"url"`        // default "http://localhost:8000"
	Model      string        `yaml:"model"`      // used by the openai backend
	APIKey     string        `yaml:"apiKey"`     // used by the openai backend
	BaseURL    string        `yaml:"baseURL"`    // used by the openai backend
	Timeout    time.Duration `yaml:"timeout"`    // default 60s
	Collection string        `yaml:"collection"` // default "code_chunks"
}

type WorkspaceConfig struct {
	Root        string   `yaml:"root"`        // default "../ecommerce-website"
	Extensions  []string `yaml:"extensions"`  // default .tsx .ts .html .css
	SearchLimit int      `yaml:"searchLimit"` // default 5
	ChunkLines  int      `yaml:"chunkLines"`  // default 60
	BatchSize   int      `yaml:"batchSize"`   // default 16
}

type LogConfig struct {
	Level  string `yaml:"level"`  // default "info"
	Format string `yaml:"format"` // "console" or "json"
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        5000,
			Host:        "127.0.0.1",
			URL:         "http://127.0.0.1:5000",
			CallTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type:    "bolt",
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Backend:   "chat",
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama-3.3-70b-versatile",
			Timeout:   60 * time.Second,
			ClaudeCLI: "claude",
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			MaxStalls:     3,
		},
		Embedding: EmbeddingConfig{
			Backend:    "http",
			URL:        "http://localhost:8000",
			Model:      "text-embedding-3-small",
			Timeout:    60 * time.Second,
			Collection: "code_chunks",
		},
		Workspace: WorkspaceConfig{
			Root:        "../ecommerce-website",
			Extensions:  []string{".tsx", ".ts", ".html", ".css"},
			SearchLimit: 5,
			ChunkLines:  60,
			BatchSize:   16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (if it exists), then the environment. An empty path means
// $SCOUT_CONFIG or DefaultPath. A missing file is not an error unless the
// path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvGroqAPIKey); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv(EnvWorkspace); v != "" {
		c.Workspace.Root = v
	}
	c.Store.DataDir = expandHome(c.Store.DataDir)
	c.Workspace.Root = expandHome(c.Workspace.Root)
	c.Agent.SystemPromptFile = expandHome(c.Agent.SystemPromptFile)
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "bolt", "memory":
	default:
		return fmt.Errorf("store.type must be bolt or memory, got %q", c.Store.Type)
	}
	switch c.LLM.Backend {
	case "chat", "claude-cli":
	default:
		return fmt.Errorf("llm.backend must be chat or claude-cli, got %q", c.LLM.Backend)
	}
	switch c.Embedding.Backend {
	case "http", "openai":
	default:
		return fmt.Errorf("embedding.backend must be http or openai, got %q", c.Embedding.Backend)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.maxIterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxStalls < 0 {
		return fmt.Errorf("agent.maxStalls must not be negative, got %d", c.Agent.MaxStalls)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save writes c as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RunsDBPath returns the BoltDB file holding agent run records. `scout ask`
// and `scout serve` each lock their own file.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.Store.DataDir, "runs.db")
}

// CallsDBPath returns the BoltDB file holding the server's call log.
func (c *Config) CallsDBPath() string {
	return filepath.Join(c.Store.DataDir, "calls.db")
}

// IndexPath returns the full path to the SQLite vector index.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Store.DataDir, "index.db")
}

// DefaultPath is ~/.scout/config.yaml.
func DefaultPath() string {
	return filepath.Join(scoutHome(), "config.yaml")
}

// defaultDataDir resolves the default data directory.
func defaultDataDir() string {
	return filepath.Join(scoutHome(), "data")
}

// scoutHome is ~/.scout, falling back to /tmp/scout when the home
// directory cannot be determined.
func scoutHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scout")
	}
	return filepath.Join(home, ".scout")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
