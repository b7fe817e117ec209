// Package embedding turns text into vectors for the code index, either
// through a self-hosted /embed service or an OpenAI-compatible API.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultServiceURL = "http://localhost:8000"
	DefaultModel      = "BAAI/bge-large-en"
	DefaultTimeout    = 60 * time.Second
)

// Embedder maps texts to vectors, one per text and in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// ---------------------------------------------------------------------------
// HTTP service
// ---------------------------------------------------------------------------

// HTTPEmbedder calls a service that accepts {"texts": [...]} on POST /embed
// and answers {"embeddings": [[...], ...]}.
type HTTPEmbedder struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPEmbedder creates an embedder for the service at baseURL.
func NewHTTPEmbedder(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (e *HTTPEmbedder) Name() string { return "http:" + e.baseURL }

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed posts texts to the service.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshalling embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request to %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed service returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}

	e.logger.Debug("embedded texts", zap.Int("count", len(texts)), zap.Int("dim", len(out.Embeddings[0])))
	return out.Embeddings, nil
}

// ---------------------------------------------------------------------------
// OpenAI-compatible API
// ---------------------------------------------------------------------------

// OpenAIEmbedder uses the embeddings endpoint of an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL means OpenAI.
func NewOpenAIEmbedder(apiKey, baseURL, model string, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder: API key required")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}, nil
}

func (e *OpenAIEmbedder) Name() string { return "openai:" + e.model }

// Embed requests all texts in one call and orders the vectors by index.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings (%s): %w", e.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings API returned out of range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}

	e.logger.Debug("embedded texts", zap.String("model", e.model), zap.Int("count", len(texts)))
	return out, nil
}
