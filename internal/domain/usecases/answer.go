package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/vecmath"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// AnswerOptions tunes the hybrid answer policy.
type AnswerOptions struct {
	Threshold       float64 // top-1 score needed for direct mode
	Temperature     float64
	MaxTokens       int
	Attempts        int     // direct-mode generation attempts
	TemperatureStep float64 // added per retry
	ContextBudget   int     // runes of context in the direct prompt, 0 unlimited

	SnippetBudget     int // runes of snippet text in escalation mode
	SnippetsPerSource int // 0 means no cap
	MaxSnippets       int // 0 means no cap

	FallbackContexts int // contexts quoted by the templated answer
	FallbackChars    int // leading runes quoted per context
}

// DefaultAnswerOptions mirrors the shipped configuration.
func DefaultAnswerOptions() AnswerOptions {
	return AnswerOptions{
		Threshold:        0.35,
		Temperature:      0.2,
		MaxTokens:        800,
		Attempts:         3,
		TemperatureStep:  0.2,
		ContextBudget:    4000,
		SnippetBudget:    2000,
		FallbackContexts: 3,
		FallbackChars:    200,
	}
}

// AnswerPolicy answers from retrieved chunks when retrieval is confident and
// from curated snippets otherwise.
type AnswerPolicy struct {
	retriever *Retriever
	embedder  ports.Embedder
	generator ports.Generator
	sidecars  ports.SidecarStore
	opts      AnswerOptions
}

// NewAnswerPolicy creates an AnswerPolicy with injected dependencies.
func NewAnswerPolicy(
	retriever *Retriever,
	embedder ports.Embedder,
	generator ports.Generator,
	sidecars ports.SidecarStore,
	opts AnswerOptions,
) *AnswerPolicy {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.FallbackContexts <= 0 {
		opts.FallbackContexts = 3
	}
	if opts.FallbackChars <= 0 {
		opts.FallbackChars = 200
	}
	return &AnswerPolicy{
		retriever: retriever,
		embedder:  embedder,
		generator: generator,
		sidecars:  sidecars,
		opts:      opts,
	}
}

// Answer resolves query into a direct or snippet-based answer.
// "No data" and "no usable generation" are normal responses; only
// infrastructure and configuration failures are returned as errors.
func (p *AnswerPolicy) Answer(ctx context.Context, query string, k int) (entities.Answer, error) {
	hits, q, err := p.retriever.search(ctx, query, k)
	if err != nil {
		return entities.Answer{}, err
	}

	resp := entities.Answer{
		Mode:           entities.ModeDirect,
		Contexts:       hits,
		Threshold:      p.opts.Threshold,
		Model:          p.generator.Model(),
		EmbeddingModel: p.embedder.Model(),
	}
	if len(hits) == 0 {
		resp.Contexts = []entities.Hit{}
		resp.Answer = NotFoundAnswer
		return resp, nil
	}
	resp.TopScore = hits[0].Score

	if resp.TopScore >= p.opts.Threshold {
		return p.direct(ctx, query, resp)
	}

	snippets, err := p.candidateSnippets(ctx, hits, q)
	if err != nil {
		return entities.Answer{}, err
	}
	if snippets == nil {
		logging.Infof("Top score %.3f below %.2f but no sidecars for the hit documents; answering directly", resp.TopScore, p.opts.Threshold)
		resp.Fallback = entities.FallbackNoSidecars
		return p.direct(ctx, query, resp)
	}
	selected := SelectSnippets(snippets, p.opts.SnippetBudget, p.opts.SnippetsPerSource, p.opts.MaxSnippets)
	if len(selected) == 0 {
		resp.Fallback = entities.FallbackNoSnippets
		return p.direct(ctx, query, resp)
	}
	return p.escalate(ctx, query, resp, selected)
}

func (p *AnswerPolicy) direct(ctx context.Context, query string, resp entities.Answer) (entities.Answer, error) {
	resp.Mode = entities.ModeDirect
	prompt, n := buildDirectPrompt(query, resp.Contexts, p.opts.ContextBudget)
	resp.Contexts = resp.Contexts[:n]

	for attempt := 0; attempt < p.opts.Attempts; attempt++ {
		temp := p.opts.Temperature + float64(attempt)*p.opts.TemperatureStep
		text, err := p.generator.Generate(ctx, ports.GenerateRequest{Prompt: prompt, Temperature: temp, MaxTokens: p.opts.MaxTokens})
		if err != nil {
			if errors.Is(err, ports.ErrNotConfigured) || ctx.Err() != nil {
				return entities.Answer{}, err
			}
			logging.Warnf("Generation attempt %d/%d failed: %v", attempt+1, p.opts.Attempts, err)
			continue
		}
		if text != "" {
			resp.Answer = text
			return resp, nil
		}
		logging.Warnf("Generation attempt %d/%d returned no text (temperature %.2f)", attempt+1, p.opts.Attempts, temp)
	}

	texts := make([]string, len(resp.Contexts))
	labels := make([]string, len(resp.Contexts))
	for i, h := range resp.Contexts {
		texts[i] = h.Text
		labels[i] = fmt.Sprintf("[%d] %s p.%d:", h.Rank, h.SourceName, h.Page)
	}
	resp.Answer = templatedAnswer(texts, labels, p.opts.FallbackContexts, p.opts.FallbackChars)
	resp.Fallback = entities.FallbackTemplate
	return resp, nil
}

func (p *AnswerPolicy) escalate(ctx context.Context, query string, resp entities.Answer, selected []entities.ScoredSnippet) (entities.Answer, error) {
	resp.Mode = entities.ModeSnippets
	resp.Snippets = selected

	text, err := p.generator.Generate(ctx, ports.GenerateRequest{
		Prompt:      buildSnippetPrompt(query, selected),
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotConfigured) || ctx.Err() != nil {
			return entities.Answer{}, err
		}
		logging.Warnf("Snippet generation failed: %v", err)
	}
	if text != "" {
		resp.Answer = text
		return resp, nil
	}

	texts := make([]string, len(selected))
	labels := make([]string, len(selected))
	for i, s := range selected {
		texts[i] = s.Text
		labels[i] = fmt.Sprintf("(%d)", i+1)
	}
	resp.Answer = templatedAnswer(texts, labels, p.opts.FallbackContexts, p.opts.FallbackChars)
	resp.Fallback = entities.FallbackTemplate
	return resp, nil
}

// candidateSnippets loads the sidecars of the hit documents and scores every snippet against q.
// It returns nil when none of the documents has a sidecar.
func (p *AnswerPolicy) candidateSnippets(ctx context.Context, hits []entities.Hit, q []float32) ([]entities.ScoredSnippet, error) {
	if p.sidecars == nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []entities.ScoredSnippet
	found := false
	for _, h := range hits {
		if seen[h.SourcePath] {
			continue
		}
		seen[h.SourcePath] = true

		sc, err := p.sidecars.Load(ctx, h.SourcePath)
		if err != nil {
			if !errors.Is(err, ports.ErrSidecarNotFound) {
				logging.Warnf("Loading sidecar of %s failed: %v", h.SourcePath, err)
			}
			continue
		}
		found = true
		for _, s := range sc.Snippets {
			out = append(out, entities.ScoredSnippet{Snippet: s, SourcePath: sc.SourcePath, SourceName: sc.SourceName})
		}
	}
	if !found {
		return nil, nil
	}
	if len(out) == 0 {
		return []entities.ScoredSnippet{}, nil
	}

	texts := make([]string, len(out))
	for i, s := range out {
		texts[i] = s.Text
	}
	// Snippet text is chunk text, so this is served from the embedding cache for indexed documents.
	vecs, err := p.embedder.EmbedBatch(ctx, texts, ports.TaskDocument)
	if err != nil {
		return nil, fmt.Errorf("embedding snippets: %w", err)
	}
	if len(vecs) != len(out) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d snippets", len(vecs), len(out))
	}
	for i := range out {
		out[i].Score = vecmath.Dot(vecmath.Normalize(vecs[i]), q)
	}
	return out, nil
}

// SelectSnippets takes snippets in descending score order while their text fits
// in budget runes. Snippets that do not fit are skipped, not truncated.
func SelectSnippets(snippets []entities.ScoredSnippet, budget, perSource, maxTotal int) []entities.ScoredSnippet {
	ordered := make([]entities.ScoredSnippet, len(snippets))
	copy(ordered, snippets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var out []entities.ScoredSnippet
	used := 0
	perDoc := make(map[string]int)
	for _, s := range ordered {
		if maxTotal > 0 && len(out) >= maxTotal {
			break
		}
		if perSource > 0 && perDoc[s.SourcePath] >= perSource {
			continue
		}
		n := len([]rune(s.Text))
		if n == 0 || used+n > budget {
			continue
		}
		used += n
		perDoc[s.SourcePath]++
		out = append(out, s)
	}
	return out
}
