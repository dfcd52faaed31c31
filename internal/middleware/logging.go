package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// RouteInfo carries the routing-table outcome for one request. Logging
// allocates a zero-value RouteInfo and attaches it to the request context
// before calling the next handler; proxy.Server fills it in once it knows
// whether (and where) the request matched, so the eventual log line reports
// the same routing decision the request actually took instead of only
// generic HTTP fields.
type RouteInfo struct {
	Matched bool
	Target  string
}

type routeInfoKey struct{}

// WithRouteInfo attaches info to ctx for a downstream handler to populate.
func WithRouteInfo(ctx context.Context, info *RouteInfo) context.Context {
	return context.WithValue(ctx, routeInfoKey{}, info)
}

// RouteInfoFromContext returns the *RouteInfo attached by WithRouteInfo, if any.
func RouteInfoFromContext(ctx context.Context) (*RouteInfo, bool) {
	info, ok := ctx.Value(routeInfoKey{}).(*RouteInfo)
	return info, ok
}

// Logging returns a middleware that logs each request with structured slog
// output, including which routing rule (if any) it was matched against.
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			route := &RouteInfo{}
			r = r.WithContext(WithRouteInfo(r.Context(), route))

			next.ServeHTTP(sw, r)

			duration := time.Since(start)
			attrs := []any{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("host", r.Host),
				slog.Int("status", sw.status),
				slog.Duration("latency", duration),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Bool("rule_matched", route.Matched),
			}
			if route.Matched {
				attrs = append(attrs, slog.String("rule_target", route.Target))
			}
			slog.Info("request", attrs...)
		})
	}
}
