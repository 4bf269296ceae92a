package cli

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the top-k chunks for a query without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		k, _ := cmd.Flags().GetInt("top-k")
		if k <= 0 {
			k = a.Config.Retrieval.TopK
		}
		hits, err := a.Retriever.Search(context.Background(), strings.Join(args, " "), k)
		if err != nil {
			return err
		}
		if jsonMode() {
			return printJSON(hits)
		}
		printHits(os.Stdout, hits, a.Config.Answer.Threshold)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		k, _ := cmd.Flags().GetInt("top-k")
		if k <= 0 {
			k = a.Config.Retrieval.TopK
		}
		resp, err := a.Answers.Answer(context.Background(), strings.Join(args, " "), k)
		if err != nil {
			return err
		}
		if jsonMode() {
			return printJSON(resp)
		}
		printAnswer(os.Stdout, resp)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntP("top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().IntP("top-k", "k", 0, "number of chunks to retrieve (default from config)")
	rootCmd.AddCommand(searchCmd, askCmd)
}
