package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/math15/visagate/internal/cache"
	"github.com/math15/visagate/internal/challenge"
	"github.com/math15/visagate/internal/config"
	"github.com/math15/visagate/internal/model"
	"github.com/math15/visagate/internal/orchestrator"
	"github.com/math15/visagate/internal/pool"
	"github.com/math15/visagate/internal/report"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewExchangeCmd creates the exchange command.
func NewExchangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange [spec-file]",
		Short: "Run challenge-aware exchanges against the portal",
		Long: `Exchange submits one or more form exchanges described by a YAML spec file.

Each exchange is routed through an egress identity acquired from the pool.
When the portal answers with a bot-mitigation challenge, the challenge
parameters are extracted, solved through the configured solver API, and the
request is resubmitted once with the solved token. Network-level failures
rotate to a fresh identity up to the re-acquisition bound; content-level
rejections are surfaced immediately.

Spec file example:
  target_url: https://portal.example.com/appointment
  method: POST
  count: 3
  form:
    center: "Madrid"
    category: "Work Visa"

Examples:
  # Run the exchanges described by spec.yaml
  visagate exchange spec.yaml

  # Run against Spanish egress identities only, four at a time
  visagate exchange --region ES --batch 4 spec.yaml

  # Write a Markdown report to a file
  visagate exchange --markdown -o report.md spec.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runExchangeCmd,
	}

	cmd.Flags().StringP("region", "r", "",
		"Restrict identity selection to a region tag (e.g. ES)")
	cmd.Flags().IntP("count", "n", 0,
		"Number of exchanges to run (overrides the spec file count)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent exchange workers")
	cmd.Flags().StringP("mode", "M", "",
		"HTTP client mode: plain or impersonate (default from config)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP call")

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// exchangeSpec is the YAML description of an exchange run.
type exchangeSpec struct {
	// TargetURL is the absolute URL exchanges are sent to.
	TargetURL string `yaml:"target_url"`

	// Method is the HTTP method, default POST.
	Method string `yaml:"method"`

	// Form holds the form fields submitted with every exchange.
	Form map[string]string `yaml:"form"`

	// Referer overrides the derived referer header.
	Referer string `yaml:"referer"`

	// Count is how many exchanges to run, default 1.
	Count int `yaml:"count"`
}

// loadExchangeSpec reads and validates the exchange spec file.
func loadExchangeSpec(path string) (*exchangeSpec, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided spec path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec exchangeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec file: %w", err)
	}

	if spec.TargetURL == "" {
		return nil, errors.New("spec file must set target_url")
	}
	if spec.Method == "" {
		spec.Method = "POST"
	}
	if spec.Count <= 0 {
		spec.Count = 1
	}
	return &spec, nil
}

// exchanges builds the exchange units for one run. Each unit gets its own
// copy of the form fields so concurrent workers never share a map.
func (s *exchangeSpec) exchanges() []*model.ChallengeExchange {
	out := make([]*model.ChallengeExchange, s.Count)
	for i := range out {
		form := make(map[string]string, len(s.Form))
		for k, v := range s.Form {
			form[k] = v
		}
		out[i] = &model.ChallengeExchange{
			TargetURL: s.TargetURL,
			Method:    s.Method,
			Form:      form,
			Referer:   s.Referer,
		}
	}
	return out
}

// runExchangeCmd executes the exchange command.
func runExchangeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if region, err := cmd.Flags().GetString("region"); err == nil && region != "" {
		cfg.Region = region
	}
	if batch, err := cmd.Flags().GetInt("batch"); err == nil && batch > 0 {
		cfg.BatchSize = batch
	}
	if mode, err := cmd.Flags().GetString("mode"); err == nil && mode != "" {
		cfg.Mode = config.ClientMode(mode)
	}
	if timeout, err := cmd.Flags().GetDuration("timeout"); err == nil && timeout > 0 {
		cfg.Timeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.SolverEndpoint == "" {
		return errors.New("no solver endpoint configured (set solver.endpoint in the config file)")
	}

	spec, err := loadExchangeSpec(args[0])
	if err != nil {
		return err
	}
	if count, err := cmd.Flags().GetInt("count"); err == nil && count > 0 {
		spec.Count = count
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runExchanges(ctx, cmd, cfg, spec, logger)
}

// runExchanges opens the stores, runs the exchange units, and writes the
// report.
func runExchanges(ctx context.Context, cmd *cobra.Command, cfg *config.Config, spec *exchangeSpec, logger *slog.Logger) error {
	p, err := pool.Open(cfg.PoolDir, pool.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}
	defer p.Close()

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact cache: %w", err)
	}

	solver := challenge.NewRemoteSolver(cfg.SolverEndpoint, cfg.SolverAPIKey, cfg.SolverTimeout)
	orch := orchestrator.New(cfg, orchestrator.Options{
		Pool:   p,
		Cache:  c,
		Solver: solver,
		Logger: logger,
	})

	exchanges := spec.exchanges()
	logger.Info("starting exchange run",
		slog.String("target", spec.TargetURL),
		slog.Int("count", len(exchanges)),
		slog.String("region", cfg.Region),
		slog.Int("batch", cfg.BatchSize))

	start := time.Now()
	outcomes, runErr := orch.RunBatch(ctx, cfg.Region, exchanges)
	elapsed := time.Since(start)

	results := make([]*model.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o != nil {
			results = append(results, o)
		}
	}

	rep := report.NewExchangeReport(spec.TargetURL, cfg.Region, results)
	fmt.Fprintf(cmd.OutOrStdout(), "Run completed in %s: %d accepted, %d rejected\n",
		elapsed.Round(time.Millisecond), rep.AcceptedCount(), rep.RejectedCount())

	if err := outputExchangeReport(cmd, rep); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("exchange run aborted: %w", runErr)
	}
	return nil
}

// outputExchangeReport writes the exchange report in the requested format.
func outputExchangeReport(cmd *cobra.Command, rep *report.ExchangeReport) error {
	w, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	defer w.close()

	_, err = w.writer.WriteExchange(rep)
	return err
}

// formatWriter bundles a report writer with its destination cleanup.
type formatWriter struct {
	writer report.Writer
	close  func()
}

// reportWriter builds the report writer selected by the format flags.
func reportWriter(cmd *cobra.Command) (*formatWriter, error) {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}
	if jsonOut && markdownOut {
		return nil, errors.New("--json and --markdown are mutually exclusive")
	}

	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	dest, closeFn, err := openOutput(outputPath, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}

	switch {
	case jsonOut:
		return &formatWriter{
			writer: report.NewFullJSONWriter(dest, currentBuild().Version, report.WithPrettyPrint()),
			close:  closeFn,
		}, nil
	case markdownOut:
		return &formatWriter{writer: report.NewMarkdownWriter(dest), close: closeFn}, nil
	default:
		return &formatWriter{writer: report.NewSimpleWriter(dest), close: closeFn}, nil
	}
}
