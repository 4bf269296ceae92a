// Package cli implements the hybridrag command line.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xcro3dile/hybridrag-go/internal/app"
	"github.com/0xcro3dile/hybridrag-go/internal/config"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

var (
	cfgFile       string
	currentConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "hybridrag",
	Short:         "hybridrag answers questions over local documents with retrieval and curated snippets",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		config.Configure(viper.GetViper(), cfgFile)
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		currentConfig = cfg

		if err := logging.Init(cfg.Paths.LogFile); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logging.SetDebug(cfg.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle("error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./hybridrag.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the index, cache and snippets")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("paths.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// getConfig returns the merged configuration loaded by the root command.
func getConfig() *config.Config {
	return currentConfig
}

func jsonMode() bool { return viper.GetBool("json") }

func openApp() (*app.App, error) {
	return app.New(getConfig())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
