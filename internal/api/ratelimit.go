package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/aloudapp/aloud-server/internal/http/response"
)

// rateLimitMiddleware applies the per-client request limit. Clients are
// keyed by IP; the limiter evicts idle entries on its own.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			s.log.Warn("rate limit exceeded", "ip", clientIP(r), "path", r.URL.Path)
			response.TooManyRequests(w, "too many requests", s.log.Logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the clientIP, trusting proxy headers when present.
func clientIP(r *http.Request) string {
	// X-Forwarded-For may hold a chain; the first hop is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
