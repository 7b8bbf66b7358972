package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"infosage/internal/config"
	"infosage/internal/logging"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "infosage",
	Short: "Fact-check text, links and files with an LLM",
	Long: `InfoSage sends submitted content to an LLM with a fixed fact-checking
prompt and returns a structured verdict: claim, accuracy, verdict, evidence,
explanation and an awareness tip.

Available subcommands:
  serve  - Run the HTTP API and web UI
  verify - Verify content from the command line`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to config file (empty to use defaults and environment only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(verifyCmd)
}

// loadRuntime loads configuration and builds the logger shared by all
// subcommands.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
