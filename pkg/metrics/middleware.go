package metrics

import (
	"net/http"
	"strconv"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// RouteFunc names the route of a request for the route label. Returning
// the raw path would give every URL its own series.
type RouteFunc func(*http.Request) string

// Middleware counts and times every request passing through next.
func (r *Recorder) Middleware(route RouteFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		timer := stopwatch.NewTimer(stopwatch.Numeric, "")
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, req)

		name := route(req)
		r.httpRequests.WithLabelValues(req.Method, name, strconv.Itoa(rw.statusCode)).Inc()
		r.httpDuration.WithLabelValues(req.Method, name).Observe(timer.Elapsed().Count())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
