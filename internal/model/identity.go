package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ValidationStatus describes the last known health of an egress identity.
// The status is advisory metadata set by the validation pass or by the
// orchestrator's demotion policy; it does not affect selection eligibility
// except that banned identities are never selected.
type ValidationStatus string

// Validation statuses for an egress identity.
const (
	// StatusPending means the identity has been imported but never validated.
	StatusPending ValidationStatus = "pending"

	// StatusValid means the last validation pass confirmed the identity works.
	StatusValid ValidationStatus = "valid"

	// StatusInvalid means the last validation pass failed. Invalid identities
	// remain selectable; only banned identities are excluded.
	StatusInvalid ValidationStatus = "invalid"

	// StatusBanned means the identity accumulated too many consecutive
	// network-level failures and is excluded from selection even when its
	// active flag is still set.
	StatusBanned ValidationStatus = "banned"
)

// ParseValidationStatus converts a string to a ValidationStatus.
// It returns false if the string is not a known status.
func ParseValidationStatus(s string) (ValidationStatus, bool) {
	switch ValidationStatus(strings.ToLower(s)) {
	case StatusPending, StatusValid, StatusInvalid, StatusBanned:
		return ValidationStatus(strings.ToLower(s)), true
	default:
		return "", false
	}
}

// EgressIdentity is an outbound network path (host/port/credentials) through
// which requests are routed. The pool stores one row per identity; usage
// counters and the validation status are mutated only through the pool's
// contract so that concurrent workers never lose updates.
type EgressIdentity struct {
	// ID is the unique identifier assigned by the pool database.
	ID int64 `json:"id"`

	// Host is the proxy hostname or IP address.
	Host string `json:"host"`

	// Port is the proxy port.
	Port int `json:"port"`

	// Username is the optional proxy username. For session-based rotating
	// proxies this embeds a routing-session marker, including the region tag.
	Username string `json:"username,omitempty"`

	// Password is the optional proxy password.
	Password string `json:"-"`

	// Region is the region tag derived from the username at import time.
	// See RegionFromUsername.
	Region string `json:"region"`

	// Active indicates whether the identity is eligible for selection.
	// Soft removal flips this flag instead of deleting the row.
	Active bool `json:"active"`

	// Status is the last known validation status.
	Status ValidationStatus `json:"validation_status"`

	// LastValidated is when the validation pass last checked this identity.
	// Zero means never validated.
	LastValidated time.Time `json:"last_validated,omitzero"`

	// UsageCount is the number of times this identity was acquired for use.
	// Monotonically non-decreasing; incremented exactly once per acquisition.
	UsageCount int64 `json:"usage_count"`

	// LastUsed is when the identity was last acquired. Zero means never used.
	// Updated atomically with UsageCount.
	LastUsed time.Time `json:"last_used,omitzero"`

	// NetworkFailures is the count of consecutive network-level failures
	// observed by the orchestrator. Reset to zero on any success. When it
	// reaches the configured demotion threshold the identity is banned.
	NetworkFailures int `json:"network_failures"`
}

// String returns "host:port" for logging. Credentials are never included.
func (e *EgressIdentity) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ProxyURL builds the proxy URL for this identity with the given scheme
// ("http" or "socks5"). Credentials are URL-escaped so that special
// characters in session-marker usernames survive the round trip.
func (e *EgressIdentity) ProxyURL(scheme string) string {
	if scheme == "" {
		scheme = "http"
	}
	if e.Username != "" || e.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d",
			scheme,
			url.QueryEscape(e.Username),
			url.QueryEscape(e.Password),
			e.Host, e.Port,
		)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

// regionMarker matches the routing-session region marker embedded in
// session-based proxy usernames, e.g. "user-session-abc123-region-ES".
var regionMarker = regexp.MustCompile(`(?i)region-([A-Za-z]{2})`)

// DefaultRegion is the region assumed when a username carries no marker.
// The upstream proxy vendor routes unmarked sessions through this region.
const DefaultRegion = "DZ"

// RegionFromUsername derives the region tag from an identity's username.
// The derivation is pure and idempotent: the same username always yields
// the same region. Usernames without a marker map to DefaultRegion.
func RegionFromUsername(username string) string {
	if m := regionMarker.FindStringSubmatch(username); m != nil {
		return strings.ToUpper(m[1])
	}
	return DefaultRegion
}
