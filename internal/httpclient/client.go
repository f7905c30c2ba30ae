package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/math15/visagate/internal/config"
	"github.com/math15/visagate/internal/model"
)

// Request is a transport-independent HTTP request. Cookies set here are
// merged over the client's session cookies for this request only.
type Request struct {
	// Method is the HTTP method. Empty means GET.
	Method string

	// URL is the absolute target URL.
	URL string

	// Header holds single-valued request headers.
	Header map[string]string

	// Cookies holds per-request cookie overrides by name.
	Cookies map[string]string

	// Body is the request body. Nil means no body.
	Body []byte
}

// Response is a transport-independent HTTP response with the body fully
// read and size-capped.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds response headers, first value only.
	Header map[string]string

	// Cookies holds Set-Cookie values by name.
	Cookies map[string]string

	// Body is the response body, truncated at the configured cap.
	Body []byte
}

// Client executes HTTP exchanges through a fixed egress path. A Client is
// bound to at most one egress identity for its lifetime; switching identity
// means constructing a new client.
type Client interface {
	// Do executes one request. The response body is fully read before Do
	// returns. A non-2xx status is not an error.
	Do(ctx context.Context, req *Request) (*Response, error)

	// SetCookie sets or overwrites one session cookie applied to every
	// subsequent request.
	SetCookie(name, value string)

	// Close releases idle connections.
	Close()
}

// Options configures client construction.
type Options struct {
	// Mode selects the transport implementation.
	Mode config.ClientMode

	// Identity is the egress identity to route through. Nil means direct.
	Identity *model.EgressIdentity

	// ProxyScheme is the proxy URL scheme (http, https, socks5).
	ProxyScheme string

	// UserAgent is sent on every request unless overridden per request.
	UserAgent string

	// Timeout bounds each request end to end.
	Timeout time.Duration

	// MaxBodySize caps how many response bytes are read.
	MaxBodySize int64
}

// New constructs a Client for the given options.
func New(opts Options) (Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = config.DefaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.ProxyScheme == "" {
		opts.ProxyScheme = "http"
	}

	switch opts.Mode {
	case config.ClientImpersonate:
		return newImpersonatingClient(opts)
	case config.ClientPlain, "":
		return newPlainClient(opts)
	default:
		return nil, fmt.Errorf("unknown client mode: %q", opts.Mode)
	}
}
