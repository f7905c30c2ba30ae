package config

import "errors"

// Configuration validation errors.
// Package-level sentinel errors let callers use errors.Is() for programmatic
// handling while still providing human-readable messages.
var (
	// ErrInvalidTimeout is returned when the exchange timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidSolverTimeout is returned when the solver timeout is not positive.
	ErrInvalidSolverTimeout = errors.New("invalid solver timeout: must be positive")

	// ErrInvalidMaxReacquire is returned when the re-acquisition bound is negative.
	// Zero is valid and means no identity retries.
	ErrInvalidMaxReacquire = errors.New("invalid max reacquire: must be non-negative")

	// ErrInvalidDemotionThreshold is returned when the demotion threshold is not
	// positive. A threshold of zero would ban every identity on its first
	// transient failure.
	ErrInvalidDemotionThreshold = errors.New("invalid demotion threshold: must be positive")

	// ErrInvalidBatchSize is returned when the concurrent worker count is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidClientMode is returned when the client mode is neither
	// "plain" nor "impersonate".
	ErrInvalidClientMode = errors.New(`invalid client mode: must be "plain" or "impersonate"`)

	// ErrInvalidProxyScheme is returned when the proxy scheme is neither
	// "http" nor "socks5".
	ErrInvalidProxyScheme = errors.New(`invalid proxy scheme: must be "http" or "socks5"`)

	// ErrInvalidRetention is returned when the artifact retention period is not positive.
	ErrInvalidRetention = errors.New("invalid retention: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Zero means use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
