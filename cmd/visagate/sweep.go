package main

import (
	"fmt"
	"time"

	"github.com/math15/visagate/internal/cache"
	"github.com/math15/visagate/internal/config"
	"github.com/spf13/cobra"
)

// NewSweepCmd creates the sweep command.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove cached artifacts past the retention window",
		Long: `Sweep deletes cached artifacts (tokens, OTP codes, run records) older than
the retention window. The latest-pointer files are always kept so the most
recent artifact of each class stays retrievable; staleness is decided by the
freshness window at read time, not by the sweep.

Examples:
  # Sweep with the configured retention (default 7 days)
  visagate sweep

  # Keep only the last 24 hours
  visagate sweep --retention 24h`,
		Args: cobra.NoArgs,
		RunE: runSweepCmd,
	}

	cmd.Flags().DurationP("retention", "R", config.DefaultRetention,
		"Artifact age beyond which the sweep deletes")

	return cmd
}

// runSweepCmd executes the sweep command.
func runSweepCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if retention, err := cmd.Flags().GetDuration("retention"); err == nil && cmd.Flags().Changed("retention") {
		cfg.Retention = retention
	}
	if cfg.Retention <= 0 {
		return fmt.Errorf("invalid retention %s: must be positive", cfg.Retention)
	}

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact cache: %w", err)
	}

	result, err := c.Sweep(cfg.Retention)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d artifact(s) older than %s, kept %d\n",
		result.Removed, cfg.Retention.Round(time.Second), result.Kept)
	return nil
}
