package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ollamagate/internal/handlers"
	"ollamagate/internal/metrics"
	"ollamagate/internal/middleware"
)

// Handlers groups the endpoint handlers mounted under /v1.
type Handlers struct {
	Chat       *handlers.ChatHandler
	Completion *handlers.CompletionHandler
	Convert    *handlers.ConvertHandler
}

// Options are the per-request limits applied by the middleware chain.
type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSOrigins    []string
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, opts Options) {
	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Cache", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", h.Chat.Chat)
		r.Post("/completions", h.Completion.Complete)
		r.Post("/convert", h.Convert.Convert)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
