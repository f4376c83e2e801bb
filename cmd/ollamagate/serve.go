package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ollamagate/internal/cache"
	"ollamagate/internal/config"
	"ollamagate/internal/handlers"
	"ollamagate/internal/httpserver"
	"ollamagate/internal/metrics"
	"ollamagate/internal/ollama"
	"ollamagate/pkg/logging/logging"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config and PORT)")
	return cmd
}

func serve(cfg config.Config) error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("version_id", cfg.Server.VersionID),
		zap.String("redis_addr", cfg.Cache.RedisAddr),
		zap.String("ollama_base_url", cfg.Ollama.BaseURL),
		zap.String("system_message_mode", string(cfg.Conversion.SystemMessageMode)),
		zap.Bool("legacy_function_calling", cfg.Conversion.UseLegacyFunctionCalling),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Cache.RedisAddr),
		)
	}

	// ----- Response cache -----
	store := cache.NewLoggingStore(cache.NewStore(cache.Config{
		Backend: cfg.Cache.Backend,
		Prefix:  cfg.Cache.Prefix,
		Memory: cache.MemoryConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			MaxBytes:   cfg.Cache.MaxBytes,
		},
	}, redisClient))

	// ----- Ollama client -----
	client, err := ollama.NewClient(ollama.Config{
		BaseURL:         cfg.Ollama.BaseURL,
		UpstreamTimeout: cfg.Ollama.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := client.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Handlers{
		Chat:       handlers.NewChatHandler(client, store, cfg.Cache.TTL, cfg.Server.VersionID, cfg.Conversion),
		Completion: handlers.NewCompletionHandler(client, store, cfg.Cache.TTL, cfg.Server.VersionID),
		Convert:    handlers.NewConvertHandler(cfg.Conversion),
	}, httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	// ----- HTTP server -----
	// Write timeout leaves room for the request timeout plus the response.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("version_id", cfg.Server.VersionID),
	)

	// ----- Serve until a signal or a listener failure -----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	})

	// ----- Graceful shutdown -----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}
