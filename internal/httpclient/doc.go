// Package httpclient provides proxy-routed HTTP clients for challenge
// exchanges.
//
// Two implementations satisfy the Client interface: a plain net/http client
// and a browser-impersonating client built on tls-client that presents a
// Chrome TLS fingerprint. Both route through an egress identity's proxy when
// one is bound at construction, and both keep a session cookie overlay so a
// solved challenge token can overwrite the blocking cookie between attempts.
package httpclient
