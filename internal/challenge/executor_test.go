package challenge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/math15/visagate/internal/cache"
	"github.com/math15/visagate/internal/config"
	"github.com/math15/visagate/internal/httpclient"
	"github.com/math15/visagate/internal/model"
)

// scriptedClient replays a fixed sequence of responses and records every
// request and cookie mutation.
type scriptedClient struct {
	responses []*httpclient.Response
	errs      []error

	requests []*httpclient.Request
	cookies  map[string]string
}

func (c *scriptedClient) Do(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		return nil, errors.New("scriptedClient: no response scripted")
	}
	return c.responses[i], nil
}

func (c *scriptedClient) SetCookie(name, value string) {
	if c.cookies == nil {
		c.cookies = make(map[string]string)
	}
	c.cookies[name] = value
}

func (c *scriptedClient) Close() {}

// stubSolver returns a fixed token or error and counts invocations.
type stubSolver struct {
	token string
	err   error
	calls int
}

func (s *stubSolver) Solve(context.Context, *Params, string) (string, error) {
	s.calls++
	return s.token, s.err
}

func testExchange() *model.ChallengeExchange {
	return &model.ChallengeExchange{
		TargetURL:        "https://portal.example.com/appointment/submit",
		Form:             map[string]string{"slot": "2026-09-15", "center": "A1"},
		VisitorID:        "visitor-42",
		AntiforgeryToken: "anti-1",
	}
}

func acceptedResponse() *httpclient.Response {
	return &httpclient.Response{StatusCode: 200, Body: []byte(`{"result":"success"}`)}
}

func challengedResponse() *httpclient.Response {
	return &httpclient.Response{StatusCode: 202, Body: []byte(challengeHTML)}
}

func TestExecutorAcceptedFirstTry(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*httpclient.Response{acceptedResponse()}}
	solver := &stubSolver{token: "tok"}
	exec := NewExecutor(client, solver, ExecutorOptions{TargetDomain: "portal.example.com"})

	out, err := exec.Execute(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !out.Accepted() {
		t.Errorf("State = %v, want accepted", out.State)
	}
	if out.ChallengeSolved {
		t.Error("ChallengeSolved = true, want false")
	}
	if solver.calls != 0 {
		t.Errorf("solver called %d times, want 0", solver.calls)
	}
	if len(client.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(client.requests))
	}

	req := client.requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if req.Cookies[CookieVisitor] != "visitor-42" {
		t.Errorf("visitor cookie = %q, want %q", req.Cookies[CookieVisitor], "visitor-42")
	}
	if req.Cookies[CookieAntiforgery] != "anti-1" {
		t.Errorf("antiforgery cookie = %q, want %q", req.Cookies[CookieAntiforgery], "anti-1")
	}
	if req.Header["Origin"] != "https://portal.example.com" {
		t.Errorf("Origin = %q, want portal origin", req.Header["Origin"])
	}
}

func TestExecutorSolveAndRetry(t *testing.T) {
	t.Parallel()

	store, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}

	client := &scriptedClient{responses: []*httpclient.Response{
		challengedResponse(),
		acceptedResponse(),
	}}
	solver := &stubSolver{token: "tok-solved"}
	exec := NewExecutor(client, solver, ExecutorOptions{
		Cache:        store,
		TargetDomain: "portal.example.com",
	})

	out, err := exec.Execute(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !out.Accepted() {
		t.Errorf("State = %v, want accepted", out.State)
	}
	if !out.ChallengeSolved {
		t.Error("ChallengeSolved = false, want true")
	}
	if solver.calls != 1 {
		t.Errorf("solver called %d times, want 1", solver.calls)
	}
	if len(client.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(client.requests))
	}

	// The bot-mitigation cookie is overwritten on the session and on the
	// request before the retry.
	if client.cookies[CookieBotToken] != "tok-solved" {
		t.Errorf("session cookie = %q, want solved token", client.cookies[CookieBotToken])
	}
	if client.requests[1].Cookies[CookieBotToken] != "tok-solved" {
		t.Errorf("retry request cookie = %q, want solved token",
			client.requests[1].Cookies[CookieBotToken])
	}

	// The retry resubmits the identical body.
	if string(client.requests[0].Body) != string(client.requests[1].Body) {
		t.Error("retry body differs from original body")
	}

	// The solved token lands in the cache under the visitor correlation key.
	artifact, err := store.LatestFor(model.ArtifactChallengeToken, "visitor-42")
	if err != nil {
		t.Fatalf("LatestFor() error = %v", err)
	}
	if artifact.Payload != "tok-solved" {
		t.Errorf("cached payload = %q, want %q", artifact.Payload, "tok-solved")
	}
	if !artifact.Success {
		t.Error("cached artifact Success = false, want true")
	}
}

func TestExecutorRetryOverwritesSeededToken(t *testing.T) {
	t.Parallel()

	// A token seeded from the cache did not satisfy the portal: the first
	// request is challenged, and the retry must carry the freshly solved
	// token, not the seeded one. This runs through the real plain client
	// because its cookie merge gives per-request cookies precedence over
	// session cookies, which a recording mock does not reproduce.
	var (
		mu     sync.Mutex
		tokens []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		token := ""
		if ck, err := r.Cookie(CookieBotToken); err == nil {
			token = ck.Value
		}
		tokens = append(tokens, token)

		if len(tokens) == 1 {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(challengeHTML))
			return
		}
		_, _ = w.Write([]byte(`{"result":"success"}`))
	}))
	defer srv.Close()

	client, err := httpclient.New(httpclient.Options{
		Mode:    config.ClientPlain,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("httpclient.New() error = %v", err)
	}
	defer client.Close()

	ex := testExchange()
	ex.TargetURL = srv.URL + "/appointment/submit"
	ex.BotToken = "tok-seeded"

	solver := &stubSolver{token: "tok-fresh"}
	exec := NewExecutor(client, solver, ExecutorOptions{TargetDomain: "portal.example.com"})

	out, err := exec.Execute(context.Background(), ex)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.Accepted() {
		t.Fatalf("State = %v, want accepted", out.State)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(tokens) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(tokens))
	}
	if tokens[0] != "tok-seeded" {
		t.Errorf("first request bot token = %q, want seeded token", tokens[0])
	}
	if tokens[1] != "tok-fresh" {
		t.Errorf("retry bot token = %q, want solved token", tokens[1])
	}
	if ex.BotToken != "tok-fresh" {
		t.Errorf("exchange bot token = %q, want solved token", ex.BotToken)
	}
}

func TestExecutorRetryBound(t *testing.T) {
	t.Parallel()

	// The portal challenges again after the solve. The exchange must
	// terminate rejected with exactly one retry and one solve.
	client := &scriptedClient{responses: []*httpclient.Response{
		challengedResponse(),
		challengedResponse(),
	}}
	solver := &stubSolver{token: "tok"}
	exec := NewExecutor(client, solver, ExecutorOptions{TargetDomain: "portal.example.com"})

	out, err := exec.Execute(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if out.State != model.StateRejected {
		t.Errorf("State = %v, want rejected", out.State)
	}
	if out.Failure != model.FailureContent {
		t.Errorf("Failure = %v, want content rejection", out.Failure)
	}
	if len(client.requests) != 2 {
		t.Errorf("requests = %d, want exactly 2 (one retry)", len(client.requests))
	}
	if solver.calls != 1 {
		t.Errorf("solver called %d times, want exactly 1", solver.calls)
	}
}

func TestExecutorExtractionFailure(t *testing.T) {
	t.Parallel()

	// Challenged status but no extractable parameters in the body.
	client := &scriptedClient{responses: []*httpclient.Response{
		{StatusCode: 403, Body: []byte("Forbidden")},
	}}
	solver := &stubSolver{token: "tok"}
	exec := NewExecutor(client, solver, ExecutorOptions{})

	out, err := exec.Execute(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if out.State != model.StateRejected {
		t.Errorf("State = %v, want rejected", out.State)
	}
	if out.Failure != model.FailureExtraction {
		t.Errorf("Failure = %v, want extraction failure", out.Failure)
	}
	if solver.calls != 0 {
		t.Errorf("solver called %d times, want 0", solver.calls)
	}
}

func TestExecutorSolverFailure(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*httpclient.Response{challengedResponse()}}
	solver := &stubSolver{err: ErrSolver}
	exec := NewExecutor(client, solver, ExecutorOptions{})

	out, err := exec.Execute(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if out.State != model.StateRejected {
		t.Errorf("State = %v, want rejected", out.State)
	}
	if out.Failure != model.FailureSolver {
		t.Errorf("Failure = %v, want solver failure", out.Failure)
	}
	// Solver failures are terminal here; no second request goes out.
	if len(client.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(client.requests))
	}
}

func TestExecutorContentRejection(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*httpclient.Response{
		{StatusCode: 422, Body: []byte(`{"error":"slot taken"}`)},
	}}
	exec := NewExecutor(client, &stubSolver{}, ExecutorOptions{})

	out, err := exec.Execute(context.Background(), testExchange())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if out.Failure != model.FailureContent {
		t.Errorf("Failure = %v, want content rejection", out.Failure)
	}
	if out.StatusCode != 422 {
		t.Errorf("StatusCode = %d, want 422", out.StatusCode)
	}
	if out.BodySnippet == "" {
		t.Error("BodySnippet is empty, want remote body retained")
	}
}

func TestExecutorNetworkFailure(t *testing.T) {
	t.Parallel()

	netErr := errors.New("connect: connection refused")
	client := &scriptedClient{errs: []error{netErr}}
	exec := NewExecutor(client, &stubSolver{}, ExecutorOptions{})

	out, err := exec.Execute(context.Background(), testExchange())
	if !errors.Is(err, netErr) {
		t.Fatalf("Execute() error = %v, want transport error surfaced", err)
	}
	if out.Failure != model.FailureNetwork {
		t.Errorf("Failure = %v, want network failure", out.Failure)
	}
}
