package model

import (
	"encoding/json"
	"time"
)

// Artifact classes stored in the token cache.
const (
	// ArtifactChallengeToken is the class for solved bot-mitigation tokens.
	ArtifactChallengeToken = "challenge-token"

	// ArtifactOTP is the class for one-time codes retrieved out of band.
	ArtifactOTP = "otp"
)

// CachedArtifact is a short-lived, write-once credential or code produced by
// solving a challenge or by an out-of-band delivery channel. Artifacts are
// never mutated after creation; the cache only appends and sweeps.
type CachedArtifact struct {
	// ID is the timestamp-derived identifier of the artifact. Historical
	// artifacts remain retrievable by this ID for audit.
	ID string `json:"timestamp"`

	// CreatedAt is when the artifact was produced.
	CreatedAt time.Time `json:"datetime"`

	// Class is the artifact class, e.g. "challenge-token" or "otp".
	Class string `json:"class"`

	// CorrelationKey links the artifact to the exchange that produced it,
	// typically a visitor ID. Optional.
	CorrelationKey string `json:"correlation_key,omitempty"`

	// Success records whether the producing event reported success.
	Success bool `json:"success"`

	// Payload is the opaque artifact value (token string, code).
	Payload string `json:"payload"`

	// Raw preserves the full producer response for diagnostics.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Age returns how old the artifact is relative to now.
func (a *CachedArtifact) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

// IsValid reports whether the artifact is younger than maxAge.
// Validity is a pure function of the artifact's age; maxAge is a per-call
// parameter, not stored state, because different consumers tolerate
// different staleness (a challenge token expires in minutes, an OTP in
// seconds).
func (a *CachedArtifact) IsValid(now time.Time, maxAge time.Duration) bool {
	return a.Age(now) < maxAge
}
