package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testParams() *Params {
	return &Params{
		Props: json.RawMessage(`{"key":"k","iv":"v"}`),
		Host:  "abc.token.example-waf.com",
	}
}

func TestRemoteSolverSolve(t *testing.T) {
	t.Parallel()

	t.Run("successful solve", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if got := r.Header.Get("apikey"); got != "key-123" {
				t.Errorf("apikey header = %q, want %q", got, "key-123")
			}

			var req solveRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Host != "abc.token.example-waf.com" {
				t.Errorf("request host = %q", req.Host)
			}
			if req.Domain != "portal.example.com" {
				t.Errorf("request domain = %q", req.Domain)
			}

			_ = json.NewEncoder(w).Encode(solveResponse{Status: "solved", Token: "tok-xyz"})
		}))
		defer srv.Close()

		solver := NewRemoteSolver(srv.URL, "key-123", 5*time.Second)
		token, err := solver.Solve(context.Background(), testParams(), "portal.example.com")
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}
		if token != "tok-xyz" {
			t.Errorf("token = %q, want %q", token, "tok-xyz")
		}
	})

	t.Run("service error status", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer srv.Close()

		solver := NewRemoteSolver(srv.URL, "", 5*time.Second)
		if _, err := solver.Solve(context.Background(), testParams(), "d"); !errors.Is(err, ErrSolver) {
			t.Errorf("Solve() error = %v, want ErrSolver", err)
		}
	})

	t.Run("no token in response", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(solveResponse{Status: "failed", Message: "unsolvable"})
		}))
		defer srv.Close()

		solver := NewRemoteSolver(srv.URL, "", 5*time.Second)
		_, err := solver.Solve(context.Background(), testParams(), "d")
		if !errors.Is(err, ErrSolver) {
			t.Fatalf("Solve() error = %v, want ErrSolver", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer srv.Close()

		solver := NewRemoteSolver(srv.URL, "", time.Minute)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, err := solver.Solve(ctx, testParams(), "d"); !errors.Is(err, ErrSolver) {
			t.Errorf("Solve() error = %v, want ErrSolver", err)
		}
	})
}
