// Package llm provides the language model backends the agent loop talks
// to: any OpenAI-compatible chat endpoint (Groq by default), the local
// Claude CLI, and a scripted model for dry runs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/klubi/scout/internal/agent"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
	DefaultTimeout = 60 * time.Second
)

// ErrNoChoices is returned when the endpoint answers without a completion.
var ErrNoChoices = errors.New("chat completion returned no choices")

// ChatConfig configures a ChatModel.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// ChatModel completes conversations through an OpenAI-compatible chat
// completions endpoint.
type ChatModel struct {
	client *openai.Client
	cfg    ChatConfig
	logger *zap.Logger
}

// NewChatModel creates a ChatModel. Empty fields fall back to the Groq
// defaults.
func NewChatModel(cfg ChatConfig, logger *zap.Logger) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("chat model: API key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &ChatModel{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name returns the model id.
func (m *ChatModel) Name() string { return m.cfg.Model }

// Complete sends the whole conversation and returns the first choice.
func (m *ChatModel) Complete(ctx context.Context, messages []agent.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		Messages:    toChatMessages(messages),
		Temperature: m.cfg.Temperature,
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", m.cfg.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	m.logger.Debug("chat completion",
		zap.String("model", m.cfg.Model),
		zap.Int("messages", len(messages)),
		zap.Int("promptTokens", resp.Usage.PromptTokens),
		zap.Int("completionTokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(messages []agent.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    chatRole(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

func chatRole(r agent.Role) string {
	switch r {
	case agent.RoleSystem:
		return openai.ChatMessageRoleSystem
	case agent.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
