package middleware

import (
	"net/http"
	"time"

	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

// Metrics reports request counts and latency labeled by the matched route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)

		next.ServeHTTP(sw, r)

		// ServeMux fills Pattern on the shared request once it has routed it.
		metrics.RecordHTTPRequest(r.Pattern, r.Method, sw.Status(), time.Since(start))
	})
}
