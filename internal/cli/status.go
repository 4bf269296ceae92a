package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vector store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.Index.Status()
		if jsonMode() {
			return printJSON(st)
		}
		fmt.Println(headerStyle("Index"), dimStyle(a.Config.Paths.IndexDir()))
		fmt.Printf("  Chunks:          %d\n", st.Chunks)
		fmt.Printf("  Metadata rows:   %d\n", st.Metas)
		if st.Mismatch {
			fmt.Printf("  Mismatch:        %s\n", errorStyle("yes"))
		}
		fmt.Printf("  Dimension:       %d\n", st.Dim)
		fmt.Printf("  Documents:       %d\n", st.Documents)
		if !st.LastUpdated.IsZero() {
			fmt.Printf("  Last updated:    %s\n", st.LastUpdated.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Embedding model: %s\n", st.EmbeddingModel)
		fmt.Printf("  Generation model: %s\n", st.GenModel)

		stats := a.Embedder.Stats()
		fmt.Printf("  Cache backend:   %s (%d hits, %d misses this run)\n", a.Config.Embedding.CacheBackend, stats.Hits, stats.Misses)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
