package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"ollamagate/internal/metrics"
	"ollamagate/pkg/logging/logging"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner Store
}

// NewLoggingStore returns a store that logs and records metrics.
func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}

	parts, parsed := parseKey(key)
	if parsed {
		metrics.CacheLookupsTotal.WithLabelValues(parts.kind, result).Inc()
	}

	fields := append(keyFields(key, parts, parsed),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	parts, parsed := parseKey(key)
	fields := append(keyFields(key, parts, parsed),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", latencyMs),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_set", fields...)
	}

	return err
}

type keyParts struct {
	kind      string
	modelID   string
	versionID string
	hash      string
}

func keyFields(key string, parts keyParts, parsed bool) []zap.Field {
	fields := []zap.Field{zap.String("cache_key", key)}
	if parsed {
		fields = append(fields,
			zap.String("kind", parts.kind),
			zap.String("model_id", parts.modelID),
			zap.String("version_id", parts.versionID),
			zap.String("hash", parts.hash),
		)
	}
	return fields
}

// parseKey reverses Key.String. The model id is everything between the
// kind and the last two segments.
func parseKey(key string) (keyParts, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return keyParts{}, false
	}

	n := len(parts)
	return keyParts{
		kind:      parts[0],
		modelID:   strings.Join(parts[1:n-2], ":"),
		versionID: parts[n-2],
		hash:      parts[n-1],
	}, true
}
