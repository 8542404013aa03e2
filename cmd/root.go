package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/loom/internal/config"
	"github.com/agentic-research/loom/internal/engine"
)

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to loom.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
	config.RegisterFlags(rootCmd.PersistentFlags())
}

var rootCmd = &cobra.Command{
	Use:           "loom",
	Short:         "Loom: bind declarative markup against data sources",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openEngine loads configuration and the document at docPath.
func openEngine(cmd *cobra.Command, docPath string) (*engine.Engine, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	e, err := engine.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(docPath)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("resolve %s: %w", docPath, err)
	}
	if err := e.LoadFile(osfs.New(filepath.Dir(abs)), filepath.Base(abs)); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}
