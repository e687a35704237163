package api

import (
	"net"
	"net/http"
	"strings"
)

// phpAlias maps "/api/chat.php" style paths onto the canonical routes.
func phpAlias(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; strings.HasSuffix(p, ".php") {
			r.URL.Path = strings.TrimSuffix(p, ".php")
			if r.URL.RawPath != "" {
				r.URL.RawPath = strings.TrimSuffix(r.URL.RawPath, ".php")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the request's remote host. RealIP has already applied forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
