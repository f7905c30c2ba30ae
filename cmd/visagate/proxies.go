package main

import (
	"fmt"
	"log/slog"

	"github.com/math15/visagate/internal/cache"
	"github.com/math15/visagate/internal/challenge"
	"github.com/math15/visagate/internal/orchestrator"
	"github.com/math15/visagate/internal/pool"
	"github.com/math15/visagate/internal/report"
	"github.com/spf13/cobra"
)

// NewProxiesCmd creates the proxies command group.
func NewProxiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Manage the egress identity pool",
		Long: `Proxies groups the pool administration commands: listing identities,
showing aggregate status, and validating that identities route traffic.`,
	}

	cmd.AddCommand(newProxiesListCmd())
	cmd.AddCommand(newProxiesStatusCmd())
	cmd.AddCommand(newProxiesValidateCmd())

	return cmd
}

// newProxiesListCmd creates the proxies list command.
func newProxiesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List egress identities with usage counters",
		Long: `List shows every identity in the pool with its region, validation status,
usage counter, and consecutive network failures. Credentials are never
printed.

Examples:
  # List all identities
  visagate proxies list

  # List only active Spanish identities as Markdown
  visagate proxies list --region ES --active --markdown`,
		Args: cobra.NoArgs,
		RunE: runProxiesListCmd,
	}

	cmd.Flags().StringP("region", "r", "", "Filter by region tag")
	cmd.Flags().Bool("active", false, "Show only active, non-banned identities")
	addReportFlags(cmd)

	return cmd
}

// newProxiesStatusCmd creates the proxies status command.
func newProxiesStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aggregate pool counters",
		Long: `Status shows the pool's aggregate counters: total, active, and banned
identities, plus per-region and per-status breakdowns.`,
		Args: cobra.NoArgs,
		RunE: runProxiesStatusCmd,
	}

	addReportFlags(cmd)

	return cmd
}

// newProxiesValidateCmd creates the proxies validate command.
func newProxiesValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate that pool identities route traffic",
		Long: `Validate probes every active identity through the configured egress-check
URL and records the result: identities that answer are marked valid,
identities that fail are marked invalid. Invalid identities remain
selectable; only banned identities are excluded from selection.

Examples:
  # Validate the whole pool
  visagate proxies validate

  # Validate Spanish identities only
  visagate proxies validate --region ES`,
		Args: cobra.NoArgs,
		RunE: runProxiesValidateCmd,
	}

	cmd.Flags().StringP("region", "r", "", "Validate only identities in this region")
	cmd.Flags().String("check-url", "", "Egress-check URL (default from config)")

	return cmd
}

// addReportFlags registers the shared report format flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// runProxiesListCmd executes the proxies list command.
func runProxiesListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	region, err := cmd.Flags().GetString("region")
	if err != nil {
		return err
	}
	activeOnly, err := cmd.Flags().GetBool("active")
	if err != nil {
		return err
	}

	p, err := pool.Open(cfg.PoolDir, pool.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}
	defer p.Close()

	ctx := cmd.Context()
	stats, err := p.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pool stats: %w", err)
	}
	identities, err := p.List(ctx, region, activeOnly)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	return outputPoolReport(cmd, report.NewPoolReport(stats, identities))
}

// runProxiesStatusCmd executes the proxies status command.
func runProxiesStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	p, err := pool.Open(cfg.PoolDir, pool.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}
	defer p.Close()

	stats, err := p.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read pool stats: %w", err)
	}

	return outputPoolReport(cmd, report.NewPoolReport(stats, nil))
}

// runProxiesValidateCmd executes the proxies validate command.
func runProxiesValidateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if checkURL, err := cmd.Flags().GetString("check-url"); err == nil && checkURL != "" {
		cfg.EgressCheckURL = checkURL
	}
	region, err := cmd.Flags().GetString("region")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	p, err := pool.Open(cfg.PoolDir, pool.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}
	defer p.Close()

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact cache: %w", err)
	}

	// The validation pass never talks to the solver; a remote solver client
	// is still wired so the orchestrator's collaborators are complete.
	solver := challenge.NewRemoteSolver(cfg.SolverEndpoint, cfg.SolverAPIKey, cfg.SolverTimeout)
	orch := orchestrator.New(cfg, orchestrator.Options{
		Pool:   p,
		Cache:  c,
		Solver: solver,
		Logger: logger,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Validating identities through %s...\n", cfg.EgressCheckURL)

	summary, err := orch.ValidatePool(ctx, region)
	if err != nil {
		return fmt.Errorf("validation pass failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Checked: %d\nValid:   %d\nInvalid: %d\n",
		summary.Checked, summary.Valid, summary.Invalid)
	return nil
}

// outputPoolReport writes the pool report in the requested format.
func outputPoolReport(cmd *cobra.Command, rep *report.PoolReport) error {
	w, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	defer w.close()

	_, err = w.writer.WritePool(rep)
	return err
}
