package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	xproxy "golang.org/x/net/proxy"
)

// PlainClient is a net/http based implementation of Client. It offers no
// TLS fingerprint camouflage; it exists for targets without fingerprint
// checks and for the validation pass, where only reachability matters.
type PlainClient struct {
	hc   *http.Client
	opts Options

	mu      sync.RWMutex
	cookies map[string]string
}

// newPlainClient builds the transport, wiring the identity's proxy in the
// requested scheme. HTTP proxies go through the transport's proxy hook;
// SOCKS5 replaces the dialer.
func newPlainClient(opts Options) (*PlainClient, error) {
	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: opts.Timeout,
	}

	if opts.Identity != nil {
		switch opts.ProxyScheme {
		case "http", "https":
			proxyURL, err := url.Parse(opts.Identity.ProxyURL(opts.ProxyScheme))
			if err != nil {
				return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5":
			var auth *xproxy.Auth
			if opts.Identity.Username != "" {
				auth = &xproxy.Auth{
					User:     opts.Identity.Username,
					Password: opts.Identity.Password,
				}
			}
			dialer, err := xproxy.SOCKS5("tcp", opts.Identity.String(), auth, xproxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(xproxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %q", opts.ProxyScheme)
		}
	}

	return &PlainClient{
		hc: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			// Redirects are not followed: challenge classification needs the
			// raw status of the first response.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts:    opts,
		cookies: make(map[string]string),
	}, nil
}

// Do implements Client.
func (c *PlainClient) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	for name, value := range req.Header {
		httpReq.Header.Set(name, value)
	}
	for name, value := range c.mergedCookies(req.Cookies) {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     make(map[string]string, len(resp.Header)),
		Cookies:    make(map[string]string),
		Body:       respBody,
	}
	for name := range resp.Header {
		out.Header[name] = resp.Header.Get(name)
	}
	for _, ck := range resp.Cookies() {
		out.Cookies[ck.Name] = ck.Value
	}

	return out, nil
}

// SetCookie implements Client.
func (c *PlainClient) SetCookie(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[name] = value
}

// Close implements Client.
func (c *PlainClient) Close() {
	c.hc.CloseIdleConnections()
}

// mergedCookies overlays per-request cookies on the session cookies.
func (c *PlainClient) mergedCookies(reqCookies map[string]string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	merged := make(map[string]string, len(c.cookies)+len(reqCookies))
	for name, value := range c.cookies {
		merged[name] = value
	}
	for name, value := range reqCookies {
		merged[name] = value
	}
	return merged
}
