package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/internal/codebase"
	"github.com/klubi/scout/internal/config"
	"github.com/klubi/scout/internal/embedding"
	"github.com/klubi/scout/internal/llm"
	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/internal/vectordb"
)

// namedModel is a model that can identify itself in run records.
type namedModel interface {
	agent.Model
	Name() string
}

func newModel(c *config.Config, log *zap.Logger) (namedModel, error) {
	switch c.LLM.Backend {
	case "claude-cli":
		return llm.NewClaudeCLI(c.LLM.ClaudeCLI, c.LLM.Model, log), nil
	default:
		if c.LLM.APIKey == "" {
			return nil, fmt.Errorf("no API key for %s: set %s or llm.apiKey in the config file", c.LLM.BaseURL, config.EnvGroqAPIKey)
		}
		return llm.NewChatModel(llm.ChatConfig{
			BaseURL:     c.LLM.BaseURL,
			APIKey:      c.LLM.APIKey,
			Model:       c.LLM.Model,
			Temperature: c.LLM.Temperature,
			Timeout:     c.LLM.Timeout,
		}, log)
	}
}

func newEmbedder(c *config.Config, log *zap.Logger) (embedding.Embedder, error) {
	switch c.Embedding.Backend {
	case "openai":
		return embedding.NewOpenAIEmbedder(c.Embedding.APIKey, c.Embedding.BaseURL, c.Embedding.Model, log)
	default:
		return embedding.NewHTTPEmbedder(c.Embedding.URL, c.Embedding.Timeout, log), nil
	}
}

func ensureDataDir(c *config.Config) error {
	if err := os.MkdirAll(c.Store.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", c.Store.DataDir, err)
	}
	return nil
}

// openStore opens the records store at path, or an in-memory store when
// the config asks for one.
func openStore(c *config.Config, path string) (store.Store, error) {
	if c.Store.Type == "memory" {
		return store.NewMemoryStore(), nil
	}
	if err := ensureDataDir(c); err != nil {
		return nil, err
	}
	s, err := store.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	return s, nil
}

func openIndex(c *config.Config, log *zap.Logger) (*vectordb.Index, error) {
	if err := ensureDataDir(c); err != nil {
		return nil, err
	}
	return vectordb.Open(c.IndexPath(), c.Embedding.Collection, log)
}

func openWorkspace(c *config.Config) (*codebase.Workspace, error) {
	return codebase.NewWorkspace(c.Workspace.Root, c.Workspace.Extensions)
}

// systemPromptTemplate returns the configured system prompt file's
// contents, or "" for the built-in prompt.
func systemPromptTemplate(c *config.Config) (string, error) {
	if c.Agent.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Agent.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	return string(data), nil
}
