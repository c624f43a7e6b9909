package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Proton-105/workout-ledger/internal/ratelimit"
)

// SubjectFunc extracts the rate-limited subject from a request; empty skips the check.
type SubjectFunc func(r *http.Request) string

// RateLimit rejects requests over the scope's limit with 429 and a Retry-After header.
// Limiter failures let the request through.
func RateLimit(guard *ratelimit.Guard, scope ratelimit.Scope, subject SubjectFunc, log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	if subject == nil {
		subject = ClientIP
	}

	return func(next http.Handler) http.Handler {
		if guard == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := subject(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := guard.Allow(r.Context(), scope, key)
			switch {
			case err == nil:
				if result != nil && result.ResetAt.After(time.Time{}) {
					w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				}
				next.ServeHTTP(w, r)
			case errors.Is(err, ratelimit.ErrLimitExceeded):
				retryAfter := result.RetryAfter(time.Now())
				log.Warn("rate limit exceeded",
					slog.String("scope", string(scope)),
					slog.String("subject", key),
					slog.Int("retry_after", retryAfter),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests. Try again in "+strconv.Itoa(retryAfter)+" seconds.", http.StatusTooManyRequests)
			default:
				log.Warn("rate limiter error", slog.String("scope", string(scope)), slog.Any("error", err))
				next.ServeHTTP(w, r)
			}
		})
	}
}
