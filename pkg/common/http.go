package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// UserAgent is sent on every outbound request the service makes, which today
// is OIDC discovery and key fetches against the configured issuer.
func UserAgent() string {
	return "PowerStats/" + strings.TrimSpace(version)
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}

// HTTPClient returns a client for talking to the identity provider. A stalled
// issuer fails the request after timeout instead of holding the handler.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			next:      http.DefaultTransport,
			userAgent: UserAgent(),
		},
		Timeout: timeout,
	}
}
