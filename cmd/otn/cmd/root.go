package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceERC/internal/config"
	"github.com/OpenTraceLab/OpenTraceERC/internal/logging"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc/rules"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/review"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/session"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "otn",
	Short: "Connectivity inference and electrical rule checks for IC layouts",
	Long: `Infer nets from a reconstructed IC layout and run electrical rule
checks over them. Review decisions are kept next to the layout and survive
later edits.

Examples:
  otn nets cpu.otl                         # List inferred nets
  otn nets --kicad cpu.otl > cpu.net       # Export a KiCad netlist
  otn check 'boards/**/*.otl'              # Check every layout below boards/
  otn review accept cpu.otl 3f2a9c1e       # Accept a violation
  otn watch cpu.otl                        # Re-check on every save`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: otn.yaml in the working directory or a parent)")
}

// setup loads configuration and builds the logger. Diagnostics go to
// stderr so stdout stays clean for exports.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.NewLoader(logging.Discard()).Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	l, err := logging.New(loaded.Log.Level, loaded.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	slog.SetDefault(l)
	return nil
}

// loadRegistry builds the effective check catalog: built-ins, then the
// configured rules file, then the configured disabled keys.
func loadRegistry() (*erc.Registry, error) {
	reg, err := rules.LoadRegistry(erc.Builtins(), cfg.Checks.RulesFile)
	if err != nil {
		return nil, err
	}
	if len(cfg.Checks.Disabled) == 0 {
		return reg, nil
	}
	overrides := make([]erc.Override, 0, len(cfg.Checks.Disabled))
	for _, key := range cfg.Checks.Disabled {
		overrides = append(overrides, erc.Override{Key: key, Disabled: true})
	}
	return reg.Derive(overrides...)
}

// openSession opens a layout with the configured engine and checks.
func openSession(path string, reg *erc.Registry, metrics *erc.Metrics) (*session.Session, error) {
	if reg == nil {
		var err error
		if reg, err = loadRegistry(); err != nil {
			return nil, err
		}
	}
	cacheSize := cfg.Checks.CacheSize
	if cacheSize == 0 {
		cacheSize = -1
	}
	return session.Open(path, session.Options{
		Engine:    cfg.ConnectivityConfig(),
		Registry:  reg,
		CacheSize: cacheSize,
		Metrics:   metrics,
		Logger:    logger.With("layout", path),
	})
}

// openReviewed opens a layout, restores its decisions file and runs the
// checks once.
func openReviewed(ctx context.Context, path, statePath string, reg *erc.Registry, metrics *erc.Metrics) (*session.Session, review.Summary, error) {
	s, err := openSession(path, reg, metrics)
	if err != nil {
		return nil, review.Summary{}, err
	}
	prev, err := review.LoadFile(statePath)
	if err != nil {
		return nil, review.Summary{}, err
	}
	s.Restore(prev)
	sum, err := s.Check(ctx)
	if err != nil {
		return nil, review.Summary{}, err
	}
	return s, sum, nil
}
