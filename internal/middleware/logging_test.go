package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLogging_PopulatesRouteInfoForDownstreamHandler(t *testing.T) {
	var sawRouteInfo bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := RouteInfoFromContext(r.Context())
		sawRouteInfo = ok
		if ok {
			route.Matched = true
			route.Target = "backend.internal:9000"
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := Logging()(inner)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !sawRouteInfo {
		t.Fatal("expected a *RouteInfo to be attached to the request context")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestLogging_RouteInfoDefaultsUnmatched(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := Logging()(inner)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	// Logging must not panic or require the downstream handler to populate
	// RouteInfo; an untouched route is simply logged as unmatched.
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
