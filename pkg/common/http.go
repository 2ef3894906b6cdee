package common

import (
	"context"
	_ "embed"
	"net"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// defaultBrowserUserAgent is what the identity host expects to see. The
// sign-in policy behaves differently for clients it cannot fingerprint as a
// desktop browser.
const defaultBrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// ipv4Transport clones the default transport with dialing pinned to tcp4.
// The auth host publishes AAAA records but resets connections over v6.
func ipv4Transport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp4", addr)
	}
	return tr
}

// HTTPClient returns a default http client with the service user-agent set.
func HTTPClient(timeout time.Duration) *http.Client {
	v := strings.TrimSpace(version)
	userAgent := "genesismon/" + v

	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: userAgent,
		},
		Timeout: timeout,
	}
}

// BrowserHTTPClient returns an http client that presents as a desktop browser
// and only dials IPv4. An empty userAgent selects the built-in browser string.
func BrowserHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	if userAgent == "" {
		userAgent = defaultBrowserUserAgent
	}
	return &http.Client{
		Transport: &userAgentTransport{
			transport: ipv4Transport(),
			userAgent: userAgent,
		},
		Timeout: timeout,
	}
}
