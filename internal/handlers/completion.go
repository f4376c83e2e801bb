package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ollamagate/internal/cache"
	"ollamagate/internal/metrics"
	"ollamagate/internal/ollama"
	"ollamagate/pkg/logging/logging"
)

// CompletionHandler serves POST /v1/completions with mapped log
// probabilities.
type CompletionHandler struct {
	Client    ollama.Client
	Cache     cache.Store
	CacheTTL  time.Duration
	VersionID string
}

func NewCompletionHandler(client ollama.Client, c cache.Store, ttl time.Duration, versionID string) *CompletionHandler {
	return &CompletionHandler{
		Client:    client,
		Cache:     c,
		CacheTTL:  ttl,
		VersionID: versionID,
	}
}

func (h *CompletionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req ollama.CompletionRequest
	if !decodeBody(w, r, logger, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		logger.Warn("completion request rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	key, keyErr := cache.BuildKey("completion", req.Model, h.VersionID, req)
	if keyErr == nil {
		if raw, ok, err := h.Cache.Get(ctx, key.String()); err == nil && ok {
			var cached ollama.CompletionResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				w.Header().Set("X-Cache", "hit")
				writeJSON(w, http.StatusOK, &cached)
				return
			}
			logger.Warn("cache_unmarshal_error", zap.String("cache_key", key.String()))
		}
	}

	resp, err := h.Client.Complete(ctx, &req)
	if err != nil {
		writeUpstreamError(w, "completion", err)
		return
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("completion", "ok").Inc()

	// upstream ids are optional
	if resp.ID == "" {
		resp.ID = "cmpl-" + uuid.NewString()
	}

	if keyErr == nil {
		storeResponse(r, h.Cache, key, h.CacheTTL, resp)
	}

	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, resp)
}
