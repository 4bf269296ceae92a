// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/jobs"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// Answerer resolves a question into an answer.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (entities.Answer, error)
}

// Searcher ranks chunks for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]entities.Hit, error)
}

// Index reports on and removes indexed documents.
type Index interface {
	Status() entities.IndexStatus
	RemoveDocuments(ctx context.Context, paths []string) (int, error)
}

// Scheduler submits background indexing and snippet builds.
type Scheduler interface {
	IndexPaths(paths []string) *jobs.Handle
	IndexDirectory(dir string) *jobs.Handle
	BuildSnippets(path string, k int) *jobs.Handle
}

// Deps are the components behind the routes.
type Deps struct {
	Answers   Answerer
	Retriever Searcher
	Index     Index
	Scheduler Scheduler
	Sidecars  ports.SidecarStore
	Jobs      func() []jobs.Info
	Healthy   func(ctx context.Context) bool // optional PDF service probe

	DocsDir    string
	TopK       int
	CORSOrigin string
}

// Server is the HTTP server for the RAG API.
type Server struct {
	deps Deps
	addr string
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, addr string) *Server {
	if deps.TopK <= 0 {
		deps.TopK = 5
	}
	if deps.CORSOrigin == "" {
		deps.CORSOrigin = "*"
	}
	return &Server{deps: deps, addr: addr}
}

// Handler returns the routed handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/rag/status", s.handleStatus)
	mux.HandleFunc("POST /api/rag/index", s.handleIndex)
	mux.HandleFunc("POST /api/rag/query", s.handleQuery)
	mux.HandleFunc("POST /api/rag/search", s.handleSearch)
	mux.HandleFunc("POST /api/rag/remove", s.handleRemove)
	mux.HandleFunc("POST /api/snippets/build", s.handleSnippetBuild)
	mux.HandleFunc("GET /api/snippets", s.handleSnippetShow)
	return corsMiddleware(s.deps.CORSOrigin, loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // generation with retries is slow
	}

	logging.Infof("hybridrag server starting on %s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type queryRequest struct {
	Q    string `json:"q"`
	TopK int    `json:"top_k"`
}

type queryMeta struct {
	IsIndexing bool `json:"is_indexing"`
	Chunks     int  `json:"chunks"`
}

type queryResponse struct {
	entities.Answer
	Meta queryMeta `json:"_meta"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	resp, err := s.deps.Answers.Answer(r.Context(), req.Q, req.TopK)
	if err != nil {
		logging.Errorf("Query failed: %v", err)
		writeError(w, err, "rag-failed")
		return
	}

	status := s.deps.Index.Status()
	logging.Infof("Query: %.50q | mode %s | answer length %d", req.Q, resp.Mode, len(resp.Answer))
	writeJSON(w, http.StatusOK, queryResponse{
		Answer: resp,
		Meta:   queryMeta{IsIndexing: status.IsIndexing, Chunks: status.Chunks},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	hits, err := s.deps.Retriever.Search(r.Context(), req.Q, req.TopK)
	if err != nil {
		writeError(w, err, "search-failed")
		return
	}
	if hits == nil {
		hits = []entities.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return req, false
	}
	req.Q = strings.TrimSpace(req.Q)
	if req.Q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Provide 'q'"})
		return req, false
	}
	if req.TopK <= 0 {
		req.TopK = s.deps.TopK
	}
	return req, true
}

type pathsRequest struct {
	Paths []string `json:"paths"`
}

// handleIndex queues an index job; with no paths it indexes the whole documents directory.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}

	var h *jobs.Handle
	if len(req.Paths) == 0 {
		h = s.deps.Scheduler.IndexDirectory(s.deps.DocsDir)
	} else {
		paths := make([]string, 0, len(req.Paths))
		for _, p := range req.Paths {
			abs, err := s.docPath(p)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			paths = append(paths, abs)
		}
		h = s.deps.Scheduler.IndexPaths(paths)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "job": h.Info()})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Provide 'paths'"})
		return
	}
	n, err := s.deps.Index.RemoveDocuments(r.Context(), req.Paths)
	if err != nil {
		writeError(w, err, "remove-failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": n})
}

type snippetRequest struct {
	Path string `json:"path"`
	K    int    `json:"k"`
}

func (s *Server) handleSnippetBuild(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Provide 'path'"})
		return
	}
	path, err := s.docPath(req.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h := s.deps.Scheduler.BuildSnippets(path, req.K)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "job": h.Info()})
}

// docPath resolves a client path and requires it to sit inside the documents directory.
func (s *Server) docPath(p string) (string, error) {
	root, err := filepath.Abs(s.deps.DocsDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(strings.TrimSpace(p))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the documents directory", p)
	}
	return abs, nil
}

func (s *Server) handleSnippetShow(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Provide 'path'"})
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sc, err := s.deps.Sidecars.Load(r.Context(), path)
	if err != nil {
		writeError(w, err, "snippets-failed")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type statusResponse struct {
	entities.IndexStatus
	Jobs []jobs.Info `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{IndexStatus: s.deps.Index.Status(), Jobs: []jobs.Info{}}
	if s.deps.Jobs != nil {
		resp.Jobs = s.deps.Jobs()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"ok": true}
	if s.deps.Healthy != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp["pdf_service"] = s.deps.Healthy(ctx)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error, code string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrSidecarNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ports.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ports.ErrDimensionMismatch):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": code, "detail": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debugf("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
