// Package main provides the entry point for the visagate CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/math15/visagate/internal/config"
	"github.com/math15/visagate/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for visagate.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visagate",
		Short: "Challenge-aware exchange orchestrator for bot-mitigated portals",
		Long: `visagate submits form exchanges to a portal protected by an AWS-WAF-style
bot-mitigation layer. It routes each exchange through an egress identity from
a local pool, detects challenge interstitials, solves them through an external
solver API, and retries once with the solved token.

Identities, solved tokens, and run artifacts are persisted locally so that
state survives restarts: the pool in an SQLite database, tokens in a
file-based cache with a freshness window.`,
		Version:       currentBuild().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .visagate in current or home directory)")
	cmd.PersistentFlags().String("pool-dir", "",
		"Directory holding the egress pool database (default: XDG data dir)")
	cmd.PersistentFlags().String("cache-dir", "",
		"Directory holding cached artifacts (default: XDG cache dir)")

	// Add subcommands
	cmd.AddCommand(NewExchangeCmd())
	cmd.AddCommand(NewImportCmd())
	cmd.AddCommand(NewProxiesCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig creates a Config from the configuration file and global flags.
// File values override compiled defaults; flag values override the file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.New()

	configFlag, err := cmd.Flags().GetString("config")
	if err != nil {
		configFlag, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return nil, err
		}
	}

	// If the user explicitly specified a config file path, error if not
	// found. If no path was specified, silently run on defaults.
	configPath := config.FindConfigFile(configFlag)
	if configPath != "" {
		file, err := config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	} else if configFlag != "" {
		return nil, fmt.Errorf("configuration file not found: %s", configFlag)
	}

	if poolDir := getStringFlag(cmd, "pool-dir"); poolDir != "" {
		cfg.PoolDir = poolDir
	}
	if cacheDir := getStringFlag(cmd, "cache-dir"); cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getStringFlag retrieves a string flag from the command or its parent,
// returning empty on lookup failure.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// setupLogger creates the redacting structured logger.
// Credentials, tokens, and proxy URLs never reach the log output in clear.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return ctx, cancel
}

// openOutput opens the report destination: the given file path with secure
// permissions, or the fallback stream when the path is empty. The caller
// must call the returned close function.
func openOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain identity endpoints; owner-only permissions.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
