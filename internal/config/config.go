package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Timeouts and retry bounds follow the behavior observed against the remote
// portal: the bot-mitigation layer adds noticeable latency, and repeated
// solves are expensive, so the retry policy is deliberately tight.
const (
	// DefaultTimeout bounds each HTTP call of an exchange. The remote portal
	// routinely takes 10-20 seconds to answer through a residential proxy,
	// so anything much shorter produces false network failures.
	DefaultTimeout = 30 * time.Second

	// DefaultSolverTimeout is the outer bound applied to one external solver
	// invocation. The solver itself promises no fixed bound, so the
	// orchestrator enforces its own; a solver timeout is treated as a
	// rejected exchange.
	DefaultSolverTimeout = 60 * time.Second

	// DefaultMaxReacquire is how many times the orchestrator may re-acquire
	// a different egress identity after a network-level failure before
	// surfacing the failure. Content-level rejections are never retried.
	DefaultMaxReacquire = 2

	// DefaultDemotionThreshold is the number of consecutive network-level
	// failures before an identity is demoted to banned. One failure is not
	// enough: a transiently slow proxy should not be punished.
	DefaultDemotionThreshold = 3

	// DefaultBatchSize is the number of exchanges run concurrently when
	// processing multiple accounts. Each worker owns one egress identity
	// for the duration of its exchange.
	DefaultBatchSize = 4

	// DefaultRetention is how long cached artifacts are kept before the
	// sweep removes them. A week covers post-hoc audits of failed runs.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultTokenMaxAge is the default freshness window when reusing a
	// cached challenge token instead of solving again.
	DefaultTokenMaxAge = 30 * time.Minute

	// DefaultMaxBodySize limits the response body size read per request.
	// 5MB is generous for the portal's HTML while preventing memory
	// exhaustion from unexpected responses.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultUserAgent matches the Chrome build the impersonating client
	// fingerprints as. The plain client sends it too so both client modes
	// present the same surface.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultEgressCheckURL is the IP-echo endpoint the validation pass uses
	// to confirm an identity routes traffic.
	DefaultEgressCheckURL = "https://httpbin.org/ip"

	// AppName is the application name used for XDG directory paths.
	AppName = "visagate"
)

// ClientMode selects the HTTP client strategy used for exchanges.
// The choice is made once at construction time, never per call.
type ClientMode string

// Client modes.
const (
	// ClientPlain uses net/http with the egress identity as a proxy.
	ClientPlain ClientMode = "plain"

	// ClientImpersonate uses a TLS-fingerprinting client that presents a
	// real browser's TLS and header surface. Preferred against the portal's
	// bot-mitigation layer.
	ClientImpersonate ClientMode = "impersonate"
)

// Config holds all configuration options for visagate.
//
// Design decision: a single flat struct instead of nested sub-structs. The
// number of options is manageable, and nesting would add complexity without
// significant benefit.
type Config struct {
	// PoolDir is the directory holding the egress pool database.
	PoolDir string

	// CacheDir is the directory holding cached artifacts.
	CacheDir string

	// Mode selects the HTTP client strategy for exchanges.
	Mode ClientMode

	// ProxyScheme is the scheme egress identities are dialed with,
	// "http" or "socks5".
	ProxyScheme string

	// Timeout bounds each HTTP call of an exchange.
	Timeout time.Duration

	// SolverTimeout is the outer bound on one solver invocation.
	SolverTimeout time.Duration

	// SolverEndpoint is the external solver's API base URL.
	SolverEndpoint string

	// SolverAPIKey authenticates against the solver API.
	SolverAPIKey string

	// TargetDomain is the portal domain passed to the solver alongside the
	// extracted challenge parameters.
	TargetDomain string

	// Region restricts identity selection to a region tag. Empty means any.
	Region string

	// MaxReacquire bounds identity re-acquisitions after network failures.
	MaxReacquire int

	// DemotionThreshold is the consecutive-network-failure count at which
	// an identity is demoted to banned.
	DemotionThreshold int

	// BatchSize is the number of concurrent exchange workers.
	BatchSize int

	// Retention is the artifact age beyond which the sweep deletes.
	Retention time.Duration

	// TokenMaxAge is the freshness window for reusing cached tokens.
	TokenMaxAge time.Duration

	// MaxBodySize limits the response body size read per request.
	MaxBodySize int64

	// UserAgent is sent with every request.
	UserAgent string

	// EgressCheckURL is the IP-echo endpoint used by the validation pass.
	EgressCheckURL string

	// Verbose enables debug-level logging.
	Verbose bool
}

// New creates a Config with default values.
//
// Design decision: a constructor instead of relying on zero values because
// most defaults are non-zero. It also documents what the defaults are.
func New() *Config {
	return &Config{
		PoolDir:           XDGDataDir(),
		CacheDir:          XDGCacheDir(),
		Mode:              ClientImpersonate,
		ProxyScheme:       "http",
		Timeout:           DefaultTimeout,
		SolverTimeout:     DefaultSolverTimeout,
		MaxReacquire:      DefaultMaxReacquire,
		DemotionThreshold: DefaultDemotionThreshold,
		BatchSize:         DefaultBatchSize,
		Retention:         DefaultRetention,
		TokenMaxAge:       DefaultTokenMaxAge,
		MaxBodySize:       DefaultMaxBodySize,
		UserAgent:         DefaultUserAgent,
		EgressCheckURL:    DefaultEgressCheckURL,
	}
}

// XDGDataDir returns the XDG data directory for visagate.
// On Linux: ~/.local/share/visagate
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for visagate.
// On Linux: ~/.config/visagate
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for visagate.
// On Linux: ~/.cache/visagate
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found as
// a sentinel error. Called once after CLI parsing, before any work begins.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.SolverTimeout <= 0 {
		return ErrInvalidSolverTimeout
	}
	if c.MaxReacquire < 0 {
		return ErrInvalidMaxReacquire
	}
	if c.DemotionThreshold <= 0 {
		return ErrInvalidDemotionThreshold
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Mode != ClientPlain && c.Mode != ClientImpersonate {
		return ErrInvalidClientMode
	}
	if c.ProxyScheme != "http" && c.ProxyScheme != "socks5" {
		return ErrInvalidProxyScheme
	}
	if c.Retention <= 0 {
		return ErrInvalidRetention
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
