package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/math15/visagate/internal/config"
)

// Solver produces a bot-mitigation token for extracted challenge parameters.
// Implementations must honor ctx cancellation; the executor bounds every
// solve with the configured solver timeout.
type Solver interface {
	Solve(ctx context.Context, params *Params, targetDomain string) (string, error)
}

// RemoteSolver calls an HTTP solving service. The service receives the raw
// challenge properties and the script host and returns the solved token.
type RemoteSolver struct {
	endpoint string
	apiKey   string
	hc       *http.Client
}

// NewRemoteSolver builds a solver client for the given service endpoint.
func NewRemoteSolver(endpoint, apiKey string, timeout time.Duration) *RemoteSolver {
	if timeout <= 0 {
		timeout = config.DefaultSolverTimeout
	}
	return &RemoteSolver{
		endpoint: endpoint,
		apiKey:   apiKey,
		hc:       &http.Client{Timeout: timeout},
	}
}

// solveRequest is the wire format sent to the solving service.
type solveRequest struct {
	Props  json.RawMessage `json:"props"`
	Host   string          `json:"host"`
	Domain string          `json:"domain"`
}

// solveResponse is the wire format returned by the solving service.
type solveResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

// Solve implements Solver.
func (s *RemoteSolver) Solve(ctx context.Context, params *Params, targetDomain string) (string, error) {
	payload, err := json.Marshal(solveRequest{
		Props:  params.Props,
		Host:   params.Host,
		Domain: targetDomain,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrSolver, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSolver, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSolver, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrSolver, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: service returned status %d", ErrSolver, resp.StatusCode)
	}

	var sr solveResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSolver, err)
	}
	if sr.Token == "" {
		if sr.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrSolver, sr.Message)
		}
		return "", fmt.Errorf("%w: service returned no token (status %q)", ErrSolver, sr.Status)
	}

	return sr.Token, nil
}
