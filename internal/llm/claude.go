package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/klubi/scout/internal/agent"
)

// ClaudeCLI completes conversations with the local Claude CLI in print
// mode, using the operator's own Claude login instead of an API key.
type ClaudeCLI struct {
	cliBin string
	model  string
	logger *zap.Logger
}

// NewClaudeCLI creates a ClaudeCLI. An empty cliBin resolves "claude" via
// PATH.
func NewClaudeCLI(cliBin, model string, logger *zap.Logger) *ClaudeCLI {
	if cliBin == "" {
		cliBin = "claude"
	}
	return &ClaudeCLI{
		cliBin: cliBin,
		model:  model,
		logger: logger,
	}
}

// Name returns the configured model.
func (c *ClaudeCLI) Name() string { return "claude-cli:" + c.model }

// cliResponse maps the JSON output of `claude -p --output-format json`.
type cliResponse struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	Result     string  `json:"result"`
	DurationMs int     `json:"duration_ms"`
	TotalCost  float64 `json:"total_cost_usd"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete runs the CLI once per call. Print mode is stateless, so the
// system message goes to --system-prompt and the rest of the conversation
// is flattened into the prompt.
func (c *ClaudeCLI) Complete(ctx context.Context, messages []agent.Message) (string, error) {
	system, prompt := flattenTranscript(messages)

	args := []string{
		"-p", prompt,
		"--output-format", "json",
	}
	if model := resolveModel(c.model); model != "" {
		args = append(args, "--model", model)
	}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}

	c.logger.Debug("executing claude CLI",
		zap.String("bin", c.cliBin),
		zap.String("model", c.model),
		zap.Int("promptLen", len(prompt)),
	)

	cmd := exec.CommandContext(ctx, c.cliBin, args...)
	// Nested invocations refuse to start while CLAUDECODE is set.
	cmd.Env = filterEnv(os.Environ(), "CLAUDECODE")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = err.Error()
		}
		c.logger.Error("claude CLI failed", zap.Error(err), zap.String("stderr", errMsg))
		return "", fmt.Errorf("claude CLI error: %s", strings.TrimSpace(errMsg))
	}

	var resp cliResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		c.logger.Error("failed to parse claude CLI output", zap.Error(err), zap.String("raw", stdout.String()))
		return "", fmt.Errorf("parsing claude CLI output: %w", err)
	}
	if resp.IsError {
		return "", fmt.Errorf("claude CLI returned error: %s", resp.Result)
	}

	c.logger.Debug("claude CLI call completed",
		zap.Int("tokensIn", resp.Usage.InputTokens),
		zap.Int("tokensOut", resp.Usage.OutputTokens),
		zap.Float64("costUSD", resp.TotalCost),
		zap.Int("durationMs", resp.DurationMs),
	)
	return resp.Result, nil
}

// flattenTranscript splits off the system prompt and renders the remaining
// turns as labelled blocks, ending with a cue for the next reply.
func flattenTranscript(messages []agent.Message) (system, prompt string) {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			system = msg.Content
		case agent.RoleAssistant:
			fmt.Fprintf(&b, "Assistant:\n%s\n\n", msg.Content)
		default:
			fmt.Fprintf(&b, "User:\n%s\n\n", msg.Content)
		}
	}
	b.WriteString("Assistant:\n")
	return system, b.String()
}

// resolveModel maps short names to Claude CLI --model values.
func resolveModel(model string) string {
	switch model {
	case "claude-sonnet":
		return "sonnet"
	case "claude-haiku":
		return "haiku"
	case "claude-opus":
		return "opus"
	default:
		return model
	}
}

// filterEnv returns a copy of env with the given key removed.
func filterEnv(env []string, key string) []string {
	prefix := key + "="
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			result = append(result, e)
		}
	}
	return result
}
