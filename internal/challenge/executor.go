package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/math15/visagate/internal/cache"
	"github.com/math15/visagate/internal/config"
	"github.com/math15/visagate/internal/httpclient"
	"github.com/math15/visagate/internal/model"
)

// Cookie names the portal's session layer uses. The bot-mitigation cookie is
// overwritten, never appended, when a solve produces a fresh token.
const (
	CookieBotToken    = "aws-waf-token"
	CookieAntiforgery = ".AspNetCore.Antiforgery.cyS7zUT4rj8"
	CookieVisitor     = "visitorId_current"
)

// snippetLen bounds how much response body an Outcome retains.
const snippetLen = 256

// Executor drives one exchange through the challenge state machine. It is
// bound to one client (and therefore one egress identity); the solve retry
// reuses the same client so the identity stays pinned.
type Executor struct {
	client httpclient.Client
	solver Solver
	opts   ExecutorOptions
}

// ExecutorOptions carries the executor's collaborators and tuning.
type ExecutorOptions struct {
	// Cache receives solved tokens. Nil disables persistence.
	Cache *cache.Cache

	// Logger is the structured logger. Nil means slog.Default.
	Logger *slog.Logger

	// TargetDomain is passed to the solver alongside the extracted
	// parameters.
	TargetDomain string

	// SolverTimeout bounds each solve independently of the request timeout.
	SolverTimeout time.Duration
}

// NewExecutor builds an executor around a client and a solver.
func NewExecutor(client httpclient.Client, solver Solver, opts ExecutorOptions) *Executor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SolverTimeout <= 0 {
		opts.SolverTimeout = config.DefaultSolverTimeout
	}
	return &Executor{
		client: client,
		solver: solver,
		opts:   opts,
	}
}

// Execute runs one exchange to a terminal state.
//
// A returned error is always transport-level (network failure or
// cancellation); content-level failures terminate with a classified Outcome
// and a nil error. At most one retry is performed: after a successful solve
// the same form is resubmitted with only the bot-mitigation cookie replaced,
// and whatever comes back the second time is final.
func (e *Executor) Execute(ctx context.Context, ex *model.ChallengeExchange) (*model.Outcome, error) {
	out := &model.Outcome{State: model.StateInit}

	req := e.buildRequest(ex)

	resp, err := e.client.Do(ctx, req)
	if err != nil {
		out.Failure = model.FailureNetwork
		out.FailureReason = out.Failure.String()
		out.Err = err.Error()
		return out, err
	}
	out.State = model.StateSent
	out.StatusCode = resp.StatusCode
	out.BodySnippet = snippet(resp.Body)

	switch verdict := Classify(resp.StatusCode, resp.Body); verdict {
	case ClassAccepted:
		out.State = model.StateAccepted
		return out, nil

	case ClassRejected:
		return e.reject(out, model.FailureContent,
			fmt.Sprintf("remote rejected with status %d", resp.StatusCode)), nil

	case ClassChallenged:
		out.State = model.StateChallenged
		e.opts.Logger.DebugContext(ctx, "response challenged",
			slog.Int("status", resp.StatusCode),
			slog.String("visitor_id", ex.VisitorID))
	}

	params, err := Extract(resp.Body)
	if err != nil {
		return e.reject(out, model.FailureExtraction, err.Error()), nil
	}

	out.State = model.StateSolving
	token, err := e.solve(ctx, params)
	if err != nil {
		return e.reject(out, model.FailureSolver, err.Error()), nil
	}
	// A solve that outlives the exchange's context is discarded, not
	// resubmitted.
	if ctx.Err() != nil {
		out.Err = ctx.Err().Error()
		out.State = model.StateRejected
		return out, ctx.Err()
	}
	out.ChallengeSolved = true

	e.storeToken(ctx, ex, token)
	// The solved token must overwrite the bot-mitigation cookie at every
	// layer that feeds the retry: the exchange, the request's cookie set,
	// and the client session. Per-request cookies win the client's merge,
	// so leaving the seeded token in req.Cookies would resend it verbatim.
	ex.BotToken = token
	req.Cookies[CookieBotToken] = token
	e.client.SetCookie(CookieBotToken, token)

	resp, err = e.client.Do(ctx, req)
	if err != nil {
		out.Failure = model.FailureNetwork
		out.FailureReason = out.Failure.String()
		out.Err = err.Error()
		return out, err
	}
	out.State = model.StateRetried
	out.StatusCode = resp.StatusCode
	out.BodySnippet = snippet(resp.Body)

	if Classify(resp.StatusCode, resp.Body) == ClassAccepted {
		out.State = model.StateAccepted
		return out, nil
	}
	return e.reject(out, model.FailureContent,
		fmt.Sprintf("rejected after solve with status %d", resp.StatusCode)), nil
}

// buildRequest renders the exchange into a form submission with the portal's
// session cookies. The same request is reused for the retry; only the
// bot-mitigation cookie changes between attempts.
func (e *Executor) buildRequest(ex *model.ChallengeExchange) *httpclient.Request {
	form := url.Values{}
	for name, value := range ex.Form {
		form.Set(name, value)
	}

	origin := ex.TargetURL
	if u, err := url.Parse(ex.TargetURL); err == nil {
		origin = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	referer := ex.Referer
	if referer == "" {
		referer = fmt.Sprintf("%s?visitorId=%s", ex.TargetURL, url.QueryEscape(ex.VisitorID))
	}

	method := ex.Method
	if method == "" {
		method = http.MethodPost
	}

	cookies := map[string]string{
		CookieVisitor: ex.VisitorID,
	}
	if ex.AntiforgeryToken != "" {
		cookies[CookieAntiforgery] = ex.AntiforgeryToken
	}
	if ex.BotToken != "" {
		cookies[CookieBotToken] = ex.BotToken
	}

	return &httpclient.Request{
		Method: method,
		URL:    ex.TargetURL,
		Header: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Origin":       origin,
			"Referer":      referer,
		},
		Cookies: cookies,
		Body:    []byte(form.Encode()),
	}
}

// solve runs the solver under its own timeout nested in ctx.
func (e *Executor) solve(ctx context.Context, params *Params) (string, error) {
	solveCtx, cancel := context.WithTimeout(ctx, e.opts.SolverTimeout)
	defer cancel()
	return e.solver.Solve(solveCtx, params, e.opts.TargetDomain)
}

// storeToken persists a solved token under the exchange's correlation key.
// Persistence failure does not fail the exchange: the token is already in
// hand and the retry proceeds with it.
func (e *Executor) storeToken(ctx context.Context, ex *model.ChallengeExchange, token string) {
	if e.opts.Cache == nil {
		return
	}
	err := e.opts.Cache.Store(&model.CachedArtifact{
		Class:          model.ArtifactChallengeToken,
		CorrelationKey: ex.VisitorID,
		Success:        true,
		Payload:        token,
	})
	if err != nil {
		e.opts.Logger.WarnContext(ctx, "failed to cache solved token",
			slog.String("visitor_id", ex.VisitorID),
			slog.String("error", err.Error()))
	}
}

// reject finalizes an outcome with a failure classification.
func (e *Executor) reject(out *model.Outcome, failure model.FailureClass, detail string) *model.Outcome {
	out.State = model.StateRejected
	out.Failure = failure
	out.FailureReason = failure.String()
	out.Err = detail
	return out
}

// snippet truncates a body for diagnostics.
func snippet(body []byte) string {
	if len(body) > snippetLen {
		body = body[:snippetLen]
	}
	return string(body)
}
