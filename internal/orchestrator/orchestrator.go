package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/math15/visagate/internal/cache"
	"github.com/math15/visagate/internal/challenge"
	"github.com/math15/visagate/internal/config"
	"github.com/math15/visagate/internal/httpclient"
	"github.com/math15/visagate/internal/model"
	"github.com/math15/visagate/internal/pool"
)

// ClientFactory builds an HTTP client bound to one egress identity.
// Swappable so tests can substitute scripted transports.
type ClientFactory func(identity *model.EgressIdentity) (httpclient.Client, error)

// Orchestrator runs challenge exchanges end to end.
type Orchestrator struct {
	pool      *pool.Pool
	cache     *cache.Cache
	solver    challenge.Solver
	cfg       *config.Config
	logger    *slog.Logger
	newClient ClientFactory
}

// Options carries the orchestrator's collaborators.
type Options struct {
	// Pool is the egress identity pool. Required.
	Pool *pool.Pool

	// Cache is the artifact cache. Required.
	Cache *cache.Cache

	// Solver solves challenges. Required.
	Solver challenge.Solver

	// Logger is the structured logger. Nil means slog.Default.
	Logger *slog.Logger

	// NewClient overrides client construction. Nil uses the configured
	// client mode.
	NewClient ClientFactory
}

// New builds an orchestrator from configuration and collaborators.
func New(cfg *config.Config, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	newClient := opts.NewClient
	if newClient == nil {
		newClient = func(identity *model.EgressIdentity) (httpclient.Client, error) {
			return httpclient.New(httpclient.Options{
				Mode:        cfg.Mode,
				Identity:    identity,
				ProxyScheme: cfg.ProxyScheme,
				UserAgent:   cfg.UserAgent,
				Timeout:     cfg.Timeout,
				MaxBodySize: cfg.MaxBodySize,
			})
		}
	}

	return &Orchestrator{
		pool:      opts.Pool,
		cache:     opts.Cache,
		solver:    opts.Solver,
		cfg:       cfg,
		logger:    logger,
		newClient: newClient,
	}
}

// RunExchange executes one exchange, re-acquiring a fresh identity after
// retryable failures up to the configured bound.
//
// The exchange is assigned a visitor ID when it has none, and a still-fresh
// cached token for that visitor seeds the bot-mitigation cookie so a solve
// may be skipped entirely. Every attempt pins one identity; a network-level
// failure feeds that identity's demotion counter, any settled response
// resets it. Content rejections return immediately.
func (o *Orchestrator) RunExchange(ctx context.Context, region string, ex *model.ChallengeExchange) (*model.Outcome, error) {
	if ex.VisitorID == "" {
		ex.VisitorID = uuid.NewString()
	}
	o.seedToken(ex)

	maxAttempts := 1 + o.cfg.MaxReacquire
	var out *model.Outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out = o.runAttempt(ctx, region, ex, attempt)

		if out.Failure == model.FailurePoolExhausted {
			return out, pool.ErrPoolExhausted
		}
		if out.Failure == model.FailureStorage {
			return out, errors.New(out.Err)
		}
		if out.Accepted() || !out.Failure.Retryable() {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		o.logger.InfoContext(ctx, "re-acquiring identity after retryable failure",
			slog.Int("attempt", attempt),
			slog.String("failure", out.Failure.String()),
			slog.Int64("identity_id", out.IdentityID))
	}

	return out, nil
}

// runAttempt performs one acquire-execute-record cycle.
func (o *Orchestrator) runAttempt(ctx context.Context, region string, ex *model.ChallengeExchange, attempt int) *model.Outcome {
	identity, err := o.pool.Acquire(ctx, region, true)
	if err != nil {
		out := &model.Outcome{State: model.StateRejected, Attempt: attempt, Err: err.Error()}
		if errors.Is(err, pool.ErrPoolExhausted) {
			out.Failure = model.FailurePoolExhausted
		} else {
			out.Failure = model.FailureStorage
		}
		out.FailureReason = out.Failure.String()
		return out
	}

	client, err := o.newClient(identity)
	if err != nil {
		out := &model.Outcome{
			State:         model.StateRejected,
			Attempt:       attempt,
			IdentityID:    identity.ID,
			Failure:       model.FailureNetwork,
			FailureReason: model.FailureNetwork.String(),
			Err:           err.Error(),
		}
		o.recordNetworkFailure(ctx, identity)
		return out
	}
	defer client.Close()

	exec := challenge.NewExecutor(client, o.solver, challenge.ExecutorOptions{
		Cache:         o.cache,
		Logger:        o.logger,
		TargetDomain:  o.cfg.TargetDomain,
		SolverTimeout: o.cfg.SolverTimeout,
	})

	out, execErr := exec.Execute(ctx, ex)
	out.Attempt = attempt
	out.IdentityID = identity.ID

	if execErr != nil {
		if model.IsTimeout(execErr) {
			o.logger.WarnContext(ctx, "exchange timed out",
				slog.String("identity", identity.String()),
				slog.Int("attempt", attempt))
		}
		o.recordNetworkFailure(ctx, identity)
		return out
	}

	// The identity carried traffic; its failure streak ends here even when
	// the portal rejected the content.
	if err := o.pool.ResetNetworkFailures(ctx, identity.ID); err != nil {
		o.logger.WarnContext(ctx, "failed to reset failure counter",
			slog.Int64("identity_id", identity.ID),
			slog.String("error", err.Error()))
	}

	return out
}

// recordNetworkFailure feeds the demotion counter and logs a demotion.
func (o *Orchestrator) recordNetworkFailure(ctx context.Context, identity *model.EgressIdentity) {
	failures, banned, err := o.pool.RecordNetworkFailure(ctx, identity.ID, o.cfg.DemotionThreshold)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to record network failure",
			slog.Int64("identity_id", identity.ID),
			slog.String("error", err.Error()))
		return
	}
	if banned {
		o.logger.WarnContext(ctx, "identity demoted after consecutive network failures",
			slog.String("identity", identity.String()),
			slog.Int("failures", failures))
	}
}

// seedToken fills an empty bot token from the cache when a fresh enough one
// exists for the exchange's visitor.
func (o *Orchestrator) seedToken(ex *model.ChallengeExchange) {
	if ex.BotToken != "" || o.cache == nil {
		return
	}
	artifact, err := o.cache.LatestFor(model.ArtifactChallengeToken, ex.VisitorID)
	if err != nil {
		return
	}
	if artifact.Success && artifact.IsValid(time.Now().UTC(), o.cfg.TokenMaxAge) {
		ex.BotToken = artifact.Payload
	}
}

// RunBatch runs exchanges concurrently over a bounded worker group. The
// returned slice is index-aligned with the input; a worker's hard failure
// cancels the remaining workers.
func (o *Orchestrator) RunBatch(ctx context.Context, region string, exchanges []*model.ChallengeExchange) ([]*model.Outcome, error) {
	outcomes := make([]*model.Outcome, len(exchanges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.BatchSize)

	for i, ex := range exchanges {
		g.Go(func() error {
			out, err := o.RunExchange(gctx, region, ex)
			outcomes[i] = out
			// Pool exhaustion or storage loss sinks the whole batch; other
			// failures are per-exchange outcomes.
			if err != nil && (out.Failure == model.FailurePoolExhausted || out.Failure == model.FailureStorage) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, fmt.Errorf("batch aborted: %w", err)
	}
	return outcomes, nil
}

// ValidationSummary reports the result of a pool validation pass.
type ValidationSummary struct {
	// Checked is the number of identities probed.
	Checked int

	// Valid is the number that carried traffic to the check endpoint.
	Valid int

	// Invalid is the number that failed the probe.
	Invalid int
}

// ValidatePool probes every active identity (optionally filtered by region)
// against the configured egress-check URL and stamps the outcome on each
// row. Probes run concurrently up to the batch size.
func (o *Orchestrator) ValidatePool(ctx context.Context, region string) (*ValidationSummary, error) {
	identities, err := o.pool.List(ctx, region, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	results := make([]bool, len(identities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.BatchSize)
	for i, identity := range identities {
		g.Go(func() error {
			err := httpclient.ValidateIdentity(gctx, o.cfg.EgressCheckURL, httpclient.Options{
				Identity:    identity,
				ProxyScheme: o.cfg.ProxyScheme,
				UserAgent:   o.cfg.UserAgent,
				Timeout:     o.cfg.Timeout,
			})
			results[i] = err == nil

			status := model.StatusValid
			if err != nil {
				status = model.StatusInvalid
				o.logger.DebugContext(gctx, "identity failed validation",
					slog.String("identity", identity.String()),
					slog.String("error", err.Error()))
			}
			if err := o.pool.SetValidation(gctx, identity.ID, status); err != nil {
				return fmt.Errorf("failed to store validation result: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &ValidationSummary{Checked: len(identities)}
	for _, ok := range results {
		if ok {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}
	return summary, nil
}
