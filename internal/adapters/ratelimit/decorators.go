package ratelimit

import (
	"context"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// Embedder routes every batch of an underlying embedder through a Caller.
type Embedder struct {
	next   ports.Embedder
	caller *Caller
}

// NewEmbedder wraps next with caller.
func NewEmbedder(next ports.Embedder, caller *Caller) *Embedder {
	return &Embedder{next: next, caller: caller}
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, hint ports.TaskHint) ([][]float32, error) {
	return Call(ctx, e.caller, func(ctx context.Context) ([][]float32, error) {
		return e.next.EmbedBatch(ctx, texts, hint)
	})
}

func (e *Embedder) Model() string { return e.next.Model() }

// Generator routes every generation call of an underlying generator through a Caller.
type Generator struct {
	next   ports.Generator
	caller *Caller
}

// NewGenerator wraps next with caller.
func NewGenerator(next ports.Generator, caller *Caller) *Generator {
	return &Generator{next: next, caller: caller}
}

func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	return Call(ctx, g.caller, func(ctx context.Context) (string, error) {
		return g.next.Generate(ctx, req)
	})
}

func (g *Generator) Model() string { return g.next.Model() }
