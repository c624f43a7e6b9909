package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/workout-ledger/pkg/logger"
)

// Recovery turns handler panics into 500 responses and reports them to Sentry.
func Recovery(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				correlationID := logger.CorrelationIDFromContext(r.Context())
				log.Error("panic recovered",
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
					slog.String("stack", string(debug.Stack())),
				)

				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetTag("correlation_id", correlationID)
				hub.Scope().SetRequest(r)
				hub.Recover(rec)

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
