package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/jobs"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// Indexer is the part of usecases.IndexManager the syncer drives.
type Indexer interface {
	IndexDocuments(ctx context.Context, paths []string) (entities.IndexReport, error)
	IndexDirectory(ctx context.Context, dir string) (entities.IndexReport, error)
	RemoveDocuments(ctx context.Context, paths []string) (int, error)
}

// SnippetBuilder is the part of usecases.SnippetCurator the syncer drives.
type SnippetBuilder interface {
	Build(ctx context.Context, path string, k int) (entities.SnippetSidecar, error)
}

// Syncer turns file events and index requests into background jobs.
type Syncer struct {
	pool      *jobs.Pool
	index     Indexer
	snippets  SnippetBuilder
	autoBuild bool
	k         int
}

// NewSyncer creates a Syncer. With autoBuild, every freshly indexed document
// also gets its snippet sidecar rebuilt.
func NewSyncer(pool *jobs.Pool, index Indexer, snippets SnippetBuilder, autoBuild bool, k int) *Syncer {
	return &Syncer{pool: pool, index: index, snippets: snippets, autoBuild: autoBuild, k: k}
}

// Handle submits the job matching ev.
func (s *Syncer) Handle(ev ports.FileEvent) *jobs.Handle {
	if ev.Operation == ports.FileDeleted {
		return s.Remove([]string{ev.Path})
	}
	return s.IndexPaths([]string{ev.Path})
}

// Run handles events until the channel closes.
func (s *Syncer) Run(ctx context.Context, events <-chan ports.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logging.Infof("File %s: %s", ev.Operation, ev.Path)
			s.Handle(ev)
		}
	}
}

// IndexPaths submits an index job for paths.
func (s *Syncer) IndexPaths(paths []string) *jobs.Handle {
	return s.pool.Submit(jobName("index", paths), func(ctx context.Context) error {
		report, err := s.index.IndexDocuments(ctx, paths)
		s.buildSnippets(ctx, report.Indexed)
		return err
	})
}

// IndexDirectory submits a job indexing every supported file under dir.
func (s *Syncer) IndexDirectory(dir string) *jobs.Handle {
	return s.pool.Submit("index-all "+dir, func(ctx context.Context) error {
		report, err := s.index.IndexDirectory(ctx, dir)
		if err == nil {
			logging.Infof("Index of %s: %d indexed, %d unchanged, %d chunks", dir, len(report.Indexed), len(report.Skipped), report.Chunks)
		}
		s.buildSnippets(ctx, report.Indexed)
		return err
	})
}

// Remove submits a job dropping paths from the index.
func (s *Syncer) Remove(paths []string) *jobs.Handle {
	return s.pool.Submit(jobName("remove", paths), func(ctx context.Context) error {
		_, err := s.index.RemoveDocuments(ctx, paths)
		return err
	})
}

// BuildSnippets submits a sidecar rebuild for path. k <= 0 uses the configured count.
// A failed build is logged and marks the job failed; nothing else depends on it.
func (s *Syncer) BuildSnippets(path string, k int) *jobs.Handle {
	if k <= 0 {
		k = s.k
	}
	return s.pool.Submit(jobName("snippets", []string{path}), func(ctx context.Context) error {
		if s.snippets == nil {
			return fmt.Errorf("snippet builder: %w", ports.ErrNotConfigured)
		}
		sc, err := s.snippets.Build(ctx, path, k)
		if err != nil {
			logging.Warnf("Snippet build for %s failed: %v", path, err)
			return err
		}
		logging.Infof("Built %d snippets for %s", len(sc.Snippets), path)
		return nil
	})
}

// buildSnippets rebuilds sidecars when enabled. Failures are logged, never returned.
func (s *Syncer) buildSnippets(ctx context.Context, paths []string) {
	if !s.autoBuild || s.snippets == nil {
		return
	}
	for _, p := range paths {
		if _, err := s.snippets.Build(ctx, p, s.k); err != nil {
			logging.Warnf("Snippet build for %s failed: %v", p, err)
		}
	}
}

func jobName(verb string, paths []string) string {
	switch len(paths) {
	case 0:
		return verb
	case 1:
		return verb + " " + filepath.Base(paths[0])
	default:
		return fmt.Sprintf("%s %d files", verb, len(paths))
	}
}
