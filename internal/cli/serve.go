package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/hybridrag-go/internal/adapters/filewatcher"
	httpserver "github.com/0xcro3dile/hybridrag-go/internal/infrastructure/http"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, index the documents directory and watch it for changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		cfg := a.Config
		docs := cfg.Paths.Docs()

		if !a.Healthy(ctx) {
			logging.Warnf("PDF parse service at %s is not reachable; PDF documents will fail to index", cfg.PDF.ServiceURL)
		}

		watcher, err := filewatcher.NewFSNotifyWatcher(a.Extractor.SupportedExtensions())
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer watcher.Stop()
		events, err := watcher.Watch(ctx, docs)
		if err != nil {
			return fmt.Errorf("watching %s: %w", docs, err)
		}
		go a.Sync.Run(ctx, events)

		a.Sync.IndexDirectory(docs)

		srv := httpserver.NewServer(httpserver.Deps{
			Answers:    a.Answers,
			Retriever:  a.Retriever,
			Index:      a.Index,
			Scheduler:  a.Sync,
			Sidecars:   a.Sidecars,
			Jobs:       a.Jobs.Jobs,
			Healthy:    a.Healthy,
			DocsDir:    docs,
			TopK:       cfg.Retrieval.TopK,
			CORSOrigin: cfg.Server.CORSOrigin,
		}, cfg.Server.Addr)
		logging.Infof("Watching %s; index at %s", docs, cfg.Paths.IndexDir())
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
