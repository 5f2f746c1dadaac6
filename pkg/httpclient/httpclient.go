package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds a whole download, including the body
const DefaultTimeout = 5 * time.Minute

// UserAgent is sent with every request made through New clients
var UserAgent = "pvm/dev"

// New creates an HTTP client that identifies itself as pvm.
// A zero timeout means DefaultTimeout.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			Base: http.DefaultTransport,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// userAgentTransport is a RoundTripper that sets the User-Agent header
type userAgentTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req2 := req.Clone(req.Context())
	if req2.Header.Get("User-Agent") == "" {
		req2.Header.Set("User-Agent", UserAgent)
	}
	return t.Base.RoundTrip(req2)
}
