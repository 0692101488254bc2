// Package httpx holds request helpers shared by the login handlers.
package httpx

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ClientIP returns the host part of RemoteAddr. Proxy headers are expected to
// be resolved upstream, e.g. by chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Scheme returns "https" for TLS or forwarded-https requests, "http" otherwise.
func Scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); strings.EqualFold(proto, "https") {
		return "https"
	}
	return "http"
}

// FullURL reconstructs the absolute URL of the request, query string included.
func FullURL(r *http.Request) string {
	return Scheme(r) + "://" + r.Host + r.URL.RequestURI()
}

// ExpectsJSON reports whether the caller wants a JSON response rather than a redirect.
func ExpectsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "+json")
}

// SafeRedirect returns target when it is a local path or an absolute http(s)
// URL on host. Anything else yields "".
func SafeRedirect(target, host string) string {
	target = strings.TrimSpace(target)
	if target == "" || strings.ContainsAny(target, "\r\n\\") {
		return ""
	}

	u, err := url.Parse(target)
	if err != nil {
		return ""
	}

	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
			return ""
		}
		return target
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if !strings.EqualFold(u.Host, host) {
		return ""
	}
	return target
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
