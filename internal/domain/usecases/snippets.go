package usecases

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// CuratorOptions tunes snippet selection.
type CuratorOptions struct {
	K             int // snippets per document when the caller passes k <= 0
	MaxCandidates int // longest chunks offered to the model
	PreviewChars  int // runes of each candidate shown in the prompt
	Temperature   float64
	MaxTokens     int
}

// SnippetCurator picks a few representative chunks per document and stores them as a sidecar.
// It never touches the vector store.
type SnippetCurator struct {
	extractor ports.Extractor
	generator ports.Generator
	sidecars  ports.SidecarStore
	opts      CuratorOptions
	now       func() time.Time
}

// NewSnippetCurator creates a SnippetCurator. generator may be nil.
func NewSnippetCurator(extractor ports.Extractor, generator ports.Generator, sidecars ports.SidecarStore, opts CuratorOptions) *SnippetCurator {
	if opts.K <= 0 {
		opts.K = 8
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 40
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 400
	}
	return &SnippetCurator{
		extractor: extractor,
		generator: generator,
		sidecars:  sidecars,
		opts:      opts,
		now:       time.Now,
	}
}

// Build extracts path, selects k snippets and overwrites the document's sidecar.
func (c *SnippetCurator) Build(ctx context.Context, path string, k int) (entities.SnippetSidecar, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entities.SnippetSidecar{}, err
	}
	if k <= 0 {
		k = c.opts.K
	}

	passages, err := c.extractor.Extract(ctx, abs)
	if err != nil {
		return entities.SnippetSidecar{}, fmt.Errorf("extracting %s: %w", abs, err)
	}
	candidates := rankCandidates(newChunks(abs, passages), c.opts.MaxCandidates)
	k = min(k, len(candidates))

	picked := c.choose(ctx, abs, candidates, k)
	sc := entities.SnippetSidecar{
		SourcePath: abs,
		SourceName: entities.SourceName(abs),
		K:          k,
		Snippets:   make([]entities.Snippet, len(picked)),
		CreatedAt:  c.now().UTC(),
	}
	for i, idx := range picked {
		ch := candidates[idx]
		sc.Snippets[i] = entities.Snippet{
			Rank:      i + 1,
			Page:      ch.Page,
			CharStart: ch.CharStart,
			CharEnd:   ch.CharEnd,
			ChunkID:   ch.ID,
			Text:      ch.Text,
		}
	}

	if err := c.sidecars.Save(ctx, sc); err != nil {
		return entities.SnippetSidecar{}, fmt.Errorf("saving sidecar: %w", err)
	}
	logging.Infof("Built %d snippets for %s", len(sc.Snippets), sc.SourceName)
	return sc, nil
}

// choose asks the model for k candidate indices and falls back to the first k.
// A short model pick is topped up with the longest unpicked candidates.
func (c *SnippetCurator) choose(ctx context.Context, path string, candidates []entities.Chunk, k int) []int {
	fallback := make([]int, k)
	for i := range fallback {
		fallback[i] = i
	}
	if k == 0 || c.generator == nil {
		return fallback
	}

	out, err := c.generator.Generate(ctx, ports.GenerateRequest{
		Prompt:      buildSelectionPrompt(entities.SourceName(path), candidates, k, c.opts.PreviewChars),
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		logging.Warnf("Snippet selection for %s failed, using longest passages: %v", path, err)
		return fallback
	}
	picked, err := ParseSelection(out, len(candidates), k)
	if err != nil || len(picked) == 0 {
		logging.Warnf("Snippet selection for %s unparseable, using longest passages", path)
		return fallback
	}

	chosen := make(map[int]bool, len(picked))
	for _, i := range picked {
		chosen[i] = true
	}
	for i := 0; len(picked) < k && i < len(candidates); i++ {
		if !chosen[i] {
			picked = append(picked, i)
		}
	}
	return picked
}

// rankCandidates orders chunks longest first, keeping extraction order on ties, and caps them.
func rankCandidates(chunks []entities.Chunk, limit int) []entities.Chunk {
	out := make([]entities.Chunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool {
		return len([]rune(out[i].Text)) > len([]rune(out[j].Text))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
