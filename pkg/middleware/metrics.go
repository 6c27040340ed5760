package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"readerhub/pkg/metrics"
)

var idSegment = regexp.MustCompile(`/[0-9a-fA-F]{24}(/|$)`)

// Metrics records request counts and latency per route. Object IDs in the
// path are collapsed so routes keep a bounded label set.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			metrics.RecordHTTPRequest(
				r.Method,
				routeLabel(r.URL.Path),
				strconv.Itoa(wrapped.statusCode),
				time.Since(start).Seconds(),
			)
		})
	}
}

func routeLabel(path string) string {
	return idSegment.ReplaceAllString(path, "/:id$1")
}
