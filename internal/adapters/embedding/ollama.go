// Package embedding provides the Ollama embedding adapter.
// Clean Architecture: This is an adapter that implements ports.Embedder.
// It knows about Ollama specifics but the domain layer doesn't.
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

	"github.com/0xcro3dile/hybridrag-go/internal/adapters/httperr"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// Options configures the Ollama embedding adapter.
type Options struct {
	BaseURL    string
	Model      string
	Dimensions int // 0 keeps the model's native size
	Timeout    time.Duration
	// Prefixes prepended per task hint, e.g. "search_query: " for nomic-embed-text.
	DocumentPrefix string
	QueryPrefix    string
}

// OllamaAdapter implements ports.Embedder using the Ollama /api/embed endpoint.
type OllamaAdapter struct {
	opts   Options
	client *http.Client
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(opts Options) *OllamaAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &OllamaAdapter{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// ollamaEmbedRequest is the Ollama API request format.
type ollamaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	Truncate   bool     `json:"truncate"`
}

// ollamaEmbedResponse is the Ollama API response format.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Model returns the configured embedding model.
func (a *OllamaAdapter) Model() string { return a.opts.Model }

// EmbedBatch embeds all texts in a single request.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string, hint ports.TaskHint) ([][]float32, error) {
	if strings.TrimSpace(a.opts.Model) == "" {
		return nil, fmt.Errorf("embedding model: %w", ports.ErrNotConfigured)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	prefix := a.opts.DocumentPrefix
	if hint == ports.TaskQuery {
		prefix = a.opts.QueryPrefix
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = prefix + t
	}

	reqBody := ollamaEmbedRequest{
		Model:      a.opts.Model,
		Input:      input,
		Dimensions: a.opts.Dimensions,
		Truncate:   true,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logging.Debugf("Embedding %d texts via %s (model %s, hint %s)", len(texts), a.opts.BaseURL, a.opts.Model, hint)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if err := httperr.Check(resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(raw, &embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(embedResp.Embeddings), len(texts))
	}
	for i, v := range embedResp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama returned an empty embedding for text %d", i)
		}
	}

	logging.Debugf("Got %d embeddings with %d dimensions", len(embedResp.Embeddings), len(embedResp.Embeddings[0]))
	return embedResp.Embeddings, nil
}
