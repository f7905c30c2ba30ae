package model

import (
	"context"
	"errors"
	"testing"
)

// TestExchangeStateString tests state names.
func TestExchangeStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state ExchangeState
		want  string
	}{
		{StateInit, "init"},
		{StateSent, "sent"},
		{StateChallenged, "challenged"},
		{StateSolving, "solving"},
		{StateRetried, "retried"},
		{StateAccepted, "accepted"},
		{StateRejected, "rejected"},
		{ExchangeState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ExchangeState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// TestExchangeStateTerminal tests terminal state detection.
func TestExchangeStateTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []ExchangeState{StateAccepted, StateRejected} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	for _, s := range []ExchangeState{StateInit, StateSent, StateChallenged, StateSolving, StateRetried} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

// TestFailureClassRetryable tests the retry policy per failure class.
func TestFailureClassRetryable(t *testing.T) {
	t.Parallel()

	retryable := []FailureClass{FailureNetwork, FailureExtraction, FailureSolver}
	for _, f := range retryable {
		if !f.Retryable() {
			t.Errorf("%v should be retryable with a fresh identity", f)
		}
	}

	terminal := []FailureClass{FailureNone, FailurePoolExhausted, FailureStorage, FailureContent}
	for _, f := range terminal {
		if f.Retryable() {
			t.Errorf("%v should not be retryable", f)
		}
	}
}

// timeoutErr implements net.Error for testing.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// TestIsTimeout tests timeout detection on transport errors.
func TestIsTimeout(t *testing.T) {
	t.Parallel()

	if !IsTimeout(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should be a timeout")
	}
	if !IsTimeout(timeoutErr{}) {
		t.Error("net.Error with Timeout()=true should be a timeout")
	}
	if IsTimeout(errors.New("connection refused")) {
		t.Error("plain error should not be a timeout")
	}
	if IsTimeout(nil) {
		t.Error("nil should not be a timeout")
	}
}
