package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ollamagate/pkg/logging/logging"
)

// Timeout puts a deadline of d on the request context. Handlers see the
// cancellation through ctx; if the deadline passed and nothing was written
// yet, the client gets a 504.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				logging.L(ctx).Warn("request timeout", zap.Duration("timeout", d))
				writeError(w, http.StatusGatewayTimeout, "gateway_timeout")
			}
		})
	}
}
