package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

func TestOllamaAdapter_EmbedBatch(t *testing.T) {
	var got ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		out := make([][]float32, len(got.Input))
		for i := range out {
			out[i] = []float32{float32(i), 0.5, 0.25}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": out})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(Options{BaseURL: server.URL, Model: "test-model", Dimensions: 3})
	vecs, err := adapter.EmbedBatch(context.Background(), []string{"a", "b"}, ports.TaskDocument)

	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[1]) != 3 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if got.Model != "test-model" || got.Dimensions != 3 {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestOllamaAdapter_TaskHintPrefixes(t *testing.T) {
	var inputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		inputs = append(inputs, req.Input...)
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": [][]float32{{1}}})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(Options{
		BaseURL:        server.URL,
		Model:          "nomic-embed-text",
		DocumentPrefix: "search_document: ",
		QueryPrefix:    "search_query: ",
	})
	adapter.EmbedBatch(context.Background(), []string{"doc"}, ports.TaskDocument)
	adapter.EmbedBatch(context.Background(), []string{"q"}, ports.TaskQuery)

	if len(inputs) != 2 || inputs[0] != "search_document: doc" || inputs[1] != "search_query: q" {
		t.Errorf("unexpected inputs: %q", inputs)
	}
}

func TestOllamaAdapter_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(Options{BaseURL: server.URL, Model: "test"})
	_, err := adapter.EmbedBatch(context.Background(), []string{"x"}, ports.TaskDocument)

	var re *ports.RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestOllamaAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(Options{BaseURL: server.URL, Model: "test"})
	_, err := adapter.EmbedBatch(context.Background(), []string{"test"}, ports.TaskDocument)

	if err == nil {
		t.Error("should error on 500")
	}
}

func TestOllamaAdapter_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": [][]float32{{1, 2}}})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(Options{BaseURL: server.URL, Model: "test"})
	if _, err := adapter.EmbedBatch(context.Background(), []string{"a", "b"}, ports.TaskDocument); err == nil {
		t.Error("should error when the server returns fewer vectors than texts")
	}
}

func TestOllamaAdapter_MissingModel(t *testing.T) {
	adapter := NewOllamaAdapter(Options{})
	_, err := adapter.EmbedBatch(context.Background(), []string{"x"}, ports.TaskDocument)
	if !errors.Is(err, ports.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestOllamaAdapter_DefaultValues(t *testing.T) {
	adapter := NewOllamaAdapter(Options{Model: "m"})
	if adapter.opts.BaseURL != "http://localhost:11434" {
		t.Error("should default to localhost")
	}
	if adapter.Model() != "m" {
		t.Errorf("unexpected model: %s", adapter.Model())
	}
}
