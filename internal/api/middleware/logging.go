package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const logUserKey contextKey = "logUser"

// logUser is a holder the logger plants in the request context so the auth
// middleware, which runs further down the chain, can report the resolved
// user id back up to the completion log line.
type logUser struct {
	id string
}

// recordLogUser notes the authenticated user id for the request log.
func recordLogUser(ctx context.Context, id string) {
	if lu, ok := ctx.Value(logUserKey).(*logUser); ok {
		lu.id = id
	}
}

// Logger returns a request logging middleware using zerolog. Authenticated
// requests are tagged with the resolved user id for per-user tracing.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lu := &logUser{}
			r = r.WithContext(context.WithValue(r.Context(), logUserKey, lu))

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ev := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)
				if lu.id != "" {
					ev = ev.Str("user_id", lu.id)
				}
				ev.Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
