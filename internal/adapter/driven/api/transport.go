// Package api implements the AuthService and Dispatcher ports over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gregjones/httpcache"
)

// NewHTTPClient builds the shared HTTP client with the following transport stack:
//  1. go-github-ratelimit (waits out secondary rate limits signalled by the server)
//  2. httpcache (conditional request caching for anonymous GETs)
//
// Requests carrying an Authorization header bypass the cache, since httpcache
// keys entries by URL alone and a stored GET /user would otherwise answer for
// a different or revoked credential.
//
// timeout bounds every request; an expired timeout surfaces as a network failure.
func NewHTTPClient(timeout time.Duration) *http.Client {
	base := http.DefaultTransport
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = base

	client := github_ratelimit.NewClient(&credentialBypass{cached: cacheTransport, direct: base})
	client.Timeout = timeout
	return client
}

// credentialBypass routes authenticated requests around the cache.
type credentialBypass struct {
	cached http.RoundTripper
	direct http.RoundTripper
}

func (t *credentialBypass) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.direct.RoundTrip(req)
	}
	return t.cached.RoundTrip(req)
}
