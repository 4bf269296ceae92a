package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

var indexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index documents, or the whole documents directory when no paths are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := context.Background()

		var report entities.IndexReport
		if len(args) == 0 {
			report, err = a.Index.IndexDirectory(ctx, a.Config.Paths.Docs())
		} else {
			report, err = a.Index.IndexDocuments(ctx, args)
		}

		if build, _ := cmd.Flags().GetBool("snippets"); build {
			for _, p := range report.Indexed {
				if _, berr := a.Curator.Build(ctx, p, a.Config.Snippets.K); berr != nil {
					logging.Warnf("Snippet build for %s failed: %v", p, berr)
				}
			}
		}

		if jsonMode() {
			if perr := printJSON(report); perr != nil {
				return perr
			}
			return err
		}
		fmt.Printf("%s %d indexed, %d unchanged, %d missing, %d chunks\n", headerStyle("index:"),
			len(report.Indexed), len(report.Skipped), len(report.Missing), report.Chunks)
		for _, p := range report.Missing {
			fmt.Println(dimStyle("  missing " + p))
		}
		for _, f := range report.Failures {
			fmt.Println(errorStyle("  failed ") + f)
		}
		return err
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <paths...>",
	Short: "Remove documents and their snippet sidecars from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Index.RemoveDocuments(context.Background(), args)
		if err != nil {
			return err
		}
		fmt.Printf("%s %d chunks removed\n", headerStyle("remove:"), n)
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("snippets", false, "build snippet sidecars for indexed documents")
	rootCmd.AddCommand(indexCmd, removeCmd)
}
