package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimate-engine/internal/catalog"
	"github.com/terra-clan/estimate-engine/internal/config"
)

var (
	Version = "dev"

	sectionsFile string
)

var rootCmd = &cobra.Command{
	Use:     "estimate-engine",
	Version: Version,
	Short:   "Project estimates and profitability tracking",
	Long: `estimate-engine stores event production projects, edits their cost
estimates and keeps the derived profitability metrics in sync.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sectionsFile, "sections", "", "section catalog file (overrides SECTIONS_FILE)")

	rootCmd.AddCommand(serveCmd, migrateCmd, calcCmd, exportCmd, reconcileCmd)
}

// loadConfig loads and validates configuration and installs the default
// logger writing JSON to w
func loadConfig(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))

	if sectionsFile != "" {
		cfg.Sections.File = sectionsFile
	}
	return cfg, nil
}

// loadSections returns the default catalog, replaced by the configured file
// when one is set
func loadSections(cfg *config.Config) (*catalog.Loader, error) {
	loader := catalog.NewLoader()
	if cfg.Sections.File == "" {
		return loader, nil
	}

	if err := loader.LoadFromFile(cfg.Sections.File); err != nil {
		return nil, err
	}
	return loader, nil
}

// offlineConfig is used by commands that need no database
func offlineConfig() (*config.Config, error) {
	return loadConfig(os.Stderr)
}
