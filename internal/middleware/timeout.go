package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds CRUD handlers. Report generation is mounted outside it
// and is bounded by the AI client timeout instead.
const DefaultRequestTimeout = 30 * time.Second

// Timeout cancels the request context and answers 503 when a handler overruns.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"error":"Request timed out"}`)
	}
}
