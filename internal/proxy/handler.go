package proxy

import (
	"log/slog"
	"net/url"

	"github.com/warden-proxy/warden/internal/metrics"
)

// Handler adapts a ProxyManager to the two decisions a MITM proxy engine
// needs per request: whether to intercept it (and so must present a
// certificate for its host), and where to rewrite its URI to once
// intercepted.
//
// The manager itself is not safe for concurrent mutation (see ProxyManager's
// doc comment); Handler expects its caller to hold whatever lock guards the
// manager for the duration of each method call.
type Handler struct {
	Manager *ProxyManager

	// WithCA selects whether HTTPS interception is enabled at all. When
	// false, ShouldIntercept always returns false and the proxy passes
	// HTTPS connections through untouched.
	WithCA bool
}

// NewHandler builds a Handler over manager. withCA mirrors the --noca CLI
// flag inverted: pass false to run in no-certificate mode.
func NewHandler(manager *ProxyManager, withCA bool) *Handler {
	return &Handler{Manager: manager, WithCA: withCA}
}

// ShouldIntercept decides whether a MITM certificate must be presented for
// this request's host:
//   - CA material disabled: never intercept.
//   - A matched rule whose target is https: intercept.
//   - A matched rule whose target is not https: pass through.
//   - No matching rule at all: intercept by default, so an unrecognized host
//     still gets a certificate rather than silently falling back to plain
//     passthrough for HTTPS traffic.
func (h *Handler) ShouldIntercept(requestURI *url.URL) bool {
	if !h.WithCA {
		return false
	}
	target, ok := h.Manager.FindTarget(requestURI)
	if !ok {
		return true
	}
	return target.Protocol == ProtocolHTTPS
}

// Rewrite looks up requestURI against the manager and, on a match, returns
// the rewritten URI the request should be forwarded to. ok is false when no
// rule matched and the request should pass through with its original URI
// unchanged. A rewrite failure (malformed target) is logged and treated as a
// pass-through rather than aborting the request.
func (h *Handler) Rewrite(requestURI *url.URL) (*url.URL, bool) {
	result, ok := h.Manager.FindTargetWithMatchInfo(requestURI)
	if !ok {
		return nil, false
	}

	newURI, err := Rewrite(requestURI, result.Target, result.MatchedPathPrefix)
	if err != nil {
		metrics.RecordRewriteFailure(result.Target.PathTransformMode.String())
		slog.Error("failed to rewrite proxied request URI",
			slog.String("original", requestURI.String()),
			slog.String("target", result.Target.String()),
			slog.Any("error", err),
		)
		return nil, false
	}

	slog.Debug("proxying request",
		slog.String("from", requestURI.String()),
		slog.String("to", newURI.String()),
	)
	return newURI, true
}
