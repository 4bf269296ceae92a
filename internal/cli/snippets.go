package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var snippetsCmd = &cobra.Command{
	Use:   "snippets",
	Short: "Build or show curated snippet sidecars",
}

var snippetsBuildCmd = &cobra.Command{
	Use:   "build <paths...>",
	Short: "Select representative snippets for each document with the generation model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		k, _ := cmd.Flags().GetInt("k")
		for _, p := range args {
			sc, err := a.Curator.Build(context.Background(), p, k)
			if err != nil {
				return err
			}
			if jsonMode() {
				if err := printJSON(sc); err != nil {
					return err
				}
				continue
			}
			printSidecar(os.Stdout, sc)
		}
		return nil
	},
}

var snippetsShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Print the stored sidecar of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		sc, err := a.Sidecars.Load(context.Background(), path)
		if err != nil {
			return err
		}
		if jsonMode() {
			return printJSON(sc)
		}
		printSidecar(os.Stdout, sc)
		return nil
	},
}

func init() {
	snippetsBuildCmd.Flags().Int("k", 0, "snippets per document (default from config)")
	snippetsCmd.AddCommand(snippetsBuildCmd, snippetsShowCmd)
	rootCmd.AddCommand(snippetsCmd)
}
