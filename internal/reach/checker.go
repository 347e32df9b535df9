// Package reach answers one question before a browser is spent: can we talk
// to the Superset host at all (VPN up, DNS resolving, port open)?
package reach

import (
	"context"
	"net/http"
	"time"
)

// Checker probes a URL with a single GET and no retries.
type Checker struct {
	client *http.Client
}

// NewChecker returns a checker. A zero timeout leaves the transport defaults in charge.
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		client: &http.Client{
			Timeout: timeout,
			// A redirect to the login page still proves the host is reachable.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check reports whether url answered with a 2xx or 3xx status.
func (c *Checker) Check(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
