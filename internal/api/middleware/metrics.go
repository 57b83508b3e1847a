package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/platefeed/recsys/internal/observability"
)

// idRoutePrefixes lists routes that carry a resource ID as a path segment.
// The ID is replaced with a placeholder to bound label cardinality.
var idRoutePrefixes = []struct {
	prefix string
	suffix string
}{
	{prefix: "/v1/users/", suffix: "/tags"},
	{prefix: "/v1/users/"},
	{prefix: "/v1/dishes/"},
	{prefix: "/v1/admin/jobs/"},
	{prefix: "/v1/scenarios/"},
}

// Metrics returns middleware that records HTTP request count and duration.
// When metrics is nil, recording is skipped. Put Metrics outermost so duration is full request time.
func Metrics(metrics observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(rw, r)
			duration := time.Since(start)
			route := normalizeRoute(r.URL.Path)
			statusClass := statusToClass(rw.statusCode)
			metrics.RecordRequest(r.Context(), r.Method, route, statusClass, duration)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizeRoute replaces resource ID path segments with {id} to bound cardinality.
func normalizeRoute(path string) string {
	for _, route := range idRoutePrefixes {
		if !strings.HasPrefix(path, route.prefix) {
			continue
		}
		rest := path[len(route.prefix):]
		if rest == "" {
			continue
		}
		if route.suffix != "" {
			if !strings.HasSuffix(rest, route.suffix) || strings.Count(rest, "/") != 1 {
				continue
			}
			return route.prefix + "{id}" + route.suffix
		}
		if strings.Contains(rest, "/") {
			continue
		}
		return route.prefix + "{id}"
	}
	return path
}

// statusToClass maps HTTP status code to 1xx, 2xx, 4xx, 5xx.
func statusToClass(status int) string {
	if status >= 500 {
		return "5xx"
	}
	if status >= 400 {
		return "4xx"
	}
	if status >= 300 {
		return "3xx"
	}
	if status >= 200 {
		return "2xx"
	}
	if status >= 100 {
		return "1xx"
	}
	return "unknown"
}
