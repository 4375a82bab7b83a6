package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pelicanproject/go-pelican/internal/config"
	"github.com/pelicanproject/go-pelican/internal/kernel"
)

var (
	// Global flags
	verbose  bool
	diskPath string
)

var rootCmd = &cobra.Command{
	Use:   "pelican",
	Short: "Pedagogical kernel simulator with a multi-level scheduler and an on-disk file system",
	Long: `pelican simulates a small uniprocessor operating system: a three-band
thread scheduler (SJF, priority, round-robin) with aging and demotion,
and a hierarchical file system laid out on a fixed-size sector disk
backed by an ordinary image file.

Commands:
  format      Create and format a disk image
  info        Show disk identity and file-system contents
  cp          Copy a host file into the simulated file system
  cat         Print a file's contents
  ls          List a directory
  mkdir       Create a directory
  rm          Remove a file or directory tree
  run         Run a thread workload through the scheduler`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&diskPath, "disk", "d", "", "path to the disk image (overrides config)")
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if diskPath != "" {
		cfg.DiskPath = diskPath
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(level)

	return cfg, nil
}

// schedEventWriter resolves the configured scheduler log destination.
func schedEventWriter(cfg *config.Config) (*os.File, func(), error) {
	if cfg.SchedLogPath == "" || cfg.SchedLogPath == "-" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.SchedLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open scheduler log: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// bootKernel loads the config and brings the kernel up on the configured
// disk image.
func bootKernel(format bool) (*kernel.Kernel, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	events, closeEvents, err := schedEventWriter(cfg)
	if err != nil {
		return nil, err
	}

	k, err := kernel.New(cfg, kernel.Options{
		Format:      format,
		Console:     os.Stdout,
		SchedEvents: events,
	})
	if err != nil {
		closeEvents()
		return nil, err
	}
	return k, nil
}
