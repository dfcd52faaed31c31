package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/warden-proxy/warden/internal/ratelimit"
)

// KeyExtractor extracts the rate limit key from a request.
type KeyExtractor func(r *http.Request) string

// ClientIPKeyExtractor extracts the client IP as the rate limit key.
func ClientIPKeyExtractor(r *http.Request) string {
	return r.RemoteAddr
}

// DestinationHostKeyExtractor extracts the proxied request's destination
// host as the rate limit key, rather than the caller's address. For a
// forward proxy this throttles how hard any single upstream can be driven
// through warden regardless of which client IP is generating the traffic —
// r.URL.Host carries the destination for absolute-URI forward requests and
// for CONNECT requests, falling back to r.Host for an origin-form request
// whose URI carries no host.
func DestinationHostKeyExtractor(r *http.Request) string {
	if r.URL.Host != "" {
		return r.URL.Host
	}
	return r.Host
}

// RateLimit returns a middleware that enforces rate limiting.
func RateLimit(limiter *ratelimit.ShardedSlidingWindowLimiter, keyFunc KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limit_exceeded",
					"message": "too many requests, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
