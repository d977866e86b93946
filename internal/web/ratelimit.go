package web

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/sweeney/feeder/internal/logger"
)

// rateLimit rejects requests beyond the limiter's budget with 429. The
// device serves a single operator, so one limiter covers every client.
func rateLimit(l *rate.Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	retryAfter := int(math.Ceil(1.0 / float64(l.Limit())))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				log.Warnw("rate limit exceeded", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
