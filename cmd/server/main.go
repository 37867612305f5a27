package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/config"
	"github.com/campaign-insights/backend/internal/logging"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.AppConfig
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "campaign-insights",
	Short: "Merge ad-campaign exports and ask questions about them",
	Long: `campaign-insights concatenates CSV/XLSX/XLS campaign exports that share
one column layout into a single dataset and answers natural-language
questions about it, as text or as a chart.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	queryCmd.Flags().StringVarP(&chartOut, "out", "o", "chart.png", "Where to write a generated chart")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
