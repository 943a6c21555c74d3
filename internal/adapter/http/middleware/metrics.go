package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	RecordHTTP(method, path string, status int, duration time.Duration)
}

// Metrics records HTTP metrics labelled by route pattern.
func Metrics(recorder HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			recorder.RecordHTTP(r.Method, routePattern(r), wrapped.statusCode, time.Since(start))
		})
	}
}

// routePattern avoids one label per process id.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath replaces the ids of process paths.
// /api/v1/process/01ABC/step/2 -> /api/v1/process/{id}/step/{number}
func normalizePath(path string) string {
	const prefix = "/api/v1/process/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || rest == "" {
		return path
	}
	parts := strings.Split(rest, "/")
	out := prefix + "{id}"
	if len(parts) >= 3 && parts[1] == "step" {
		out += "/step/{number}"
	}
	return out
}
