package httpx

import (
	"net"
	"net/http"
	"strings"
)

// IsDevelopmentHost reports whether the request targets a local development host.
// Cookie security attributes and cache headers relax in that case.
func IsDevelopmentHost(r *http.Request) bool {
	if r == nil {
		return false
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return strings.Contains(host, "local")
}
