package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	fhttp "github.com/bogdanfinn/fhttp"
	tlsclient "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// ImpersonatingClient is a Client backed by tls-client. It presents a
// Chrome TLS fingerprint, which challenge-protected targets check before
// serving anything but the block page.
type ImpersonatingClient struct {
	hc   tlsclient.HttpClient
	opts Options

	mu      sync.RWMutex
	cookies map[string]string
}

// newImpersonatingClient builds a tls-client with the Chrome profile and
// the identity's proxy, when one is bound.
func newImpersonatingClient(opts Options) (*ImpersonatingClient, error) {
	clientOpts := []tlsclient.HttpClientOption{
		tlsclient.WithClientProfile(profiles.Chrome_133),
		tlsclient.WithNotFollowRedirects(),
		tlsclient.WithTimeoutSeconds(int(opts.Timeout.Seconds())),
		tlsclient.WithRandomTLSExtensionOrder(),
	}
	if opts.Identity != nil {
		clientOpts = append(clientOpts, tlsclient.WithProxyUrl(opts.Identity.ProxyURL(opts.ProxyScheme)))
	}

	hc, err := tlsclient.NewHttpClient(tlsclient.NewNoopLogger(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create impersonating client: %w", err)
	}

	return &ImpersonatingClient{
		hc:      hc,
		opts:    opts,
		cookies: make(map[string]string),
	}, nil
}

// Do implements Client.
func (c *ImpersonatingClient) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = fhttp.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := fhttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	for name, value := range req.Header {
		httpReq.Header.Set(name, value)
	}
	for name, value := range c.mergedCookies(req.Cookies) {
		httpReq.AddCookie(&fhttp.Cookie{Name: name, Value: value})
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
func (c *ImpersonatingClient) SetCookie(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[name] = value
}

// Close implements Client.
func (c *ImpersonatingClient) Close() {
	c.hc.CloseIdleConnections()
}

// mergedCookies overlays per-request cookies on the session cookies.
func (c *ImpersonatingClient) mergedCookies(reqCookies map[string]string) map[string]string {
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
