package oauth

import "net/http"

// acceptJSON asks the provider for JSON responses on every request.
type acceptJSON struct {
	next http.RoundTripper
}

func (t acceptJSON) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept", "application/json")
	}
	return t.next.RoundTrip(req)
}

func withAcceptJSON(c *http.Client) *http.Client {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	wrapped := *c
	wrapped.Transport = acceptJSON{next: next}
	return &wrapped
}
