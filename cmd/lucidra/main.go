package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/config"
	"github.com/joelkehle/lucidra-engine/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "lucidra",
		Short: "Strategic assessment engine for Business Model Canvas and Five Forces analyses",
		Long: `Lucidra scores a nine-section Business Model Canvas, evaluates a
Porter's Five Forces analysis, and turns both into ranked insights.

Commands:
  serve     Run the HTTP API
  assess    Assess a snapshot file once
  render    Re-render a saved report envelope
  sections  Print the effective section definitions`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file (environment overrides it)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(assessCmd(&configPath))
	root.AddCommand(renderCmd(&configPath))
	root.AddCommand(sectionsCmd(&configPath))
	return root
}

// loadRuntime reads the config and builds the logger every command shares.
func loadRuntime(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func loadDefinitions(cfg *config.Config) ([]canvas.Definition, error) {
	if cfg.SectionsPath == "" {
		return canvas.DefaultDefinitions()
	}
	return canvas.LoadDefinitions(cfg.SectionsPath)
}

func sectionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "Print the effective section definitions as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			defs, err := loadDefinitions(cfg)
			if err != nil {
				return fmt.Errorf("load sections: %w", err)
			}
			out, err := canvas.MarshalDefinitions(defs)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
