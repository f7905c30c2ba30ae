package model

import (
	"context"
	"errors"
	"net"
)

// ExchangeState is the state of a challenge-aware exchange.
// The state machine is:
//
//	Init → Sent → {Challenged, Accepted, Rejected}
//	Challenged → Solving → Retried → {Accepted, Rejected}
//
// Accepted and Rejected are terminal. At most one retry is performed per
// exchange, and the retry reuses the same egress identity and form fields.
type ExchangeState int

// Exchange states in transition order.
const (
	StateInit ExchangeState = iota
	StateSent
	StateChallenged
	StateSolving
	StateRetried
	StateAccepted
	StateRejected
)

// String returns a human-readable state name.
func (s ExchangeState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSent:
		return "sent"
	case StateChallenged:
		return "challenged"
	case StateSolving:
		return "solving"
	case StateRetried:
		return "retried"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is a terminal state.
func (s ExchangeState) Terminal() bool {
	return s == StateAccepted || s == StateRejected
}

// ChallengeExchange describes one unit of work against the remote portal:
// a single request that may be challenged, solved, and resubmitted once.
// The exchange is transient and never persisted; only its outcome and any
// solved tokens are recorded.
type ChallengeExchange struct {
	// TargetURL is the absolute URL the request is sent to.
	TargetURL string

	// Method is the HTTP method, typically POST for form submissions.
	Method string

	// Form holds the form/body fields. The retry after a solve resubmits
	// these fields unchanged; only the bot-mitigation cookie differs.
	Form map[string]string

	// VisitorID is the correlation token for this exchange. It is sent as
	// the visitor-id cookie and used as the cache correlation key for any
	// token solved during the exchange.
	VisitorID string

	// AntiforgeryToken is the anti-forgery cookie value extracted from the
	// page that produced the form.
	AntiforgeryToken string

	// BotToken is the current bot-mitigation token, if one is already held.
	// A solve overwrites this value rather than appending a second cookie.
	BotToken string

	// Referer is the page the form was served from. When empty, it is
	// derived from TargetURL and the visitor correlation token.
	Referer string
}

// FailureClass classifies why an exchange failed. The class decides the
// orchestrator's retry policy: network-level failures are retried with a
// fresh identity, content-level rejections are terminal.
type FailureClass int

// Failure classes, from "no failure" to most specific.
const (
	// FailureNone means the exchange succeeded.
	FailureNone FailureClass = iota

	// FailurePoolExhausted means no eligible egress identity matched the
	// region filter. Fatal for the exchange.
	FailurePoolExhausted

	// FailureStorage means the token cache backend is unavailable. Fatal.
	FailureStorage

	// FailureExtraction means challenge parameters could not be extracted
	// from a challenged response.
	FailureExtraction

	// FailureSolver means the external solver raised an error or timed out.
	FailureSolver

	// FailureNetwork means a network-level failure: timeout, connection
	// refused or reset, or proxy authentication failure. Retried with a
	// different identity up to the configured bound.
	FailureNetwork

	// FailureContent means the remote service explicitly rejected the
	// payload. Never retried; surfaced with the remote's status and body.
	FailureContent
)

// String returns a human-readable failure class name.
func (f FailureClass) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailurePoolExhausted:
		return "pool exhausted"
	case FailureStorage:
		return "storage unavailable"
	case FailureExtraction:
		return "challenge extraction failed"
	case FailureSolver:
		return "solver failure"
	case FailureNetwork:
		return "network failure"
	case FailureContent:
		return "content rejection"
	default:
		return "unknown"
	}
}

// Retryable reports whether the orchestrator may retry the exchange with a
// different egress identity after this failure.
func (f FailureClass) Retryable() bool {
	switch f {
	case FailureNetwork, FailureExtraction, FailureSolver:
		return true
	default:
		return false
	}
}

// Outcome is the classified result of an exchange. It carries enough
// context (identity used, attempt number, classified reason) to reconstruct
// the decision path without replaying the request.
type Outcome struct {
	// State is the terminal state of the exchange.
	State ExchangeState `json:"state"`

	// Failure classifies the failure, or FailureNone on success.
	Failure FailureClass `json:"-"`

	// FailureReason is the string form of Failure for serialized output.
	FailureReason string `json:"failure,omitempty"`

	// IdentityID is the egress identity the exchange was pinned to.
	IdentityID int64 `json:"identity_id"`

	// Attempt is the 1-based acquisition attempt this outcome belongs to.
	Attempt int `json:"attempt"`

	// StatusCode is the final HTTP status observed, 0 on network failure.
	StatusCode int `json:"status_code,omitempty"`

	// BodySnippet retains the start of the final response body for
	// diagnostics.
	BodySnippet string `json:"body_snippet,omitempty"`

	// ChallengeSolved records whether a challenge was solved mid-flight.
	ChallengeSolved bool `json:"challenge_solved"`

	// Err is the error detail for failed exchanges.
	Err string `json:"error,omitempty"`
}

// Accepted reports whether the exchange ended in the accepted state.
func (o *Outcome) Accepted() bool {
	return o.State == StateAccepted
}

// IsTimeout reports whether a transport-level error is a timeout.
// Both context deadlines and net.Error timeouts count; the distinction only
// matters for log detail, since every transport error is a network-level
// failure for retry purposes (content-level rejections arrive as responses,
// not errors).
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
