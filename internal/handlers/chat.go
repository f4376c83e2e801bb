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

// ChatHandler serves POST /v1/chat: it converts the vendor-neutral prompt,
// consults the response cache and forwards misses to Ollama.
type ChatHandler struct {
	Client    ollama.Client
	Cache     cache.Store
	CacheTTL  time.Duration
	VersionID string
	Defaults  ollama.ConvertOptions
}

func NewChatHandler(client ollama.Client, c cache.Store, ttl time.Duration, versionID string, defaults ollama.ConvertOptions) *ChatHandler {
	return &ChatHandler{
		Client:    client,
		Cache:     c,
		CacheTTL:  ttl,
		VersionID: versionID,
		Defaults:  defaults,
	}
}

// applyDefaults fills conversion options the request left unset. Legacy
// function calling is on if either side asks for it.
func applyDefaults(opts *ollama.ConvertOptions, defaults ollama.ConvertOptions) {
	if opts.SystemMessageMode == "" {
		opts.SystemMessageMode = defaults.SystemMessageMode
	}
	opts.UseLegacyFunctionCalling = opts.UseLegacyFunctionCalling || defaults.UseLegacyFunctionCalling
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req ollama.ChatRequest
	if !decodeBody(w, r, logger, &req) {
		return
	}

	applyDefaults(&req.ConvertOptions, h.Defaults)

	if err := req.Validate(); err != nil {
		logger.Warn("chat request rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	payload, err := req.Payload()
	if err != nil {
		writeConversionError(w, logger, err)
		return
	}

	if req.UseLegacyFunctionCalling {
		if dropped := ollama.DroppedLegacyCalls(req.Messages); dropped > 0 {
			metrics.DroppedToolCallsTotal.Add(float64(dropped))
			logger.Debug("legacy function calling dropped tool calls", zap.Int("dropped", dropped))
		}
	}

	key, keyErr := cache.BuildKey("chat", payload.Model, h.VersionID, payload)
	if keyErr != nil {
		logger.Warn("key_builder_error", zap.Error(keyErr))
	} else if cached, ok := h.lookup(r, key); ok {
		logger.Info("cache_decision",
			zap.String("hash_key", key.Hash),
			zap.String("model_id", key.ModelID),
			zap.Bool("cache_hit", true),
			zap.Duration("total_latency", time.Since(start)),
		)
		w.Header().Set("X-Cache", "hit")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	upstreamStart := time.Now()
	resp, err := h.Client.Chat(ctx, payload)
	if err != nil {
		writeUpstreamError(w, "chat", err)
		return
	}
	upstreamLatency := time.Since(upstreamStart)
	metrics.UpstreamRequestsTotal.WithLabelValues("chat", "ok").Inc()

	// upstream ids are optional
	if resp.ID == "" {
		resp.ID = "chatcmpl-" + uuid.NewString()
	}

	if keyErr == nil {
		storeResponse(r, h.Cache, key, h.CacheTTL, resp)
	}

	logger.Info("cache_decision",
		zap.String("hash_key", key.Hash),
		zap.String("model_id", payload.Model),
		zap.Bool("cache_hit", false),
		zap.Duration("upstream_latency", upstreamLatency),
		zap.Duration("total_latency", time.Since(start)),
	)

	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) lookup(r *http.Request, key cache.Key) (*ollama.ChatResponse, bool) {
	raw, ok, err := h.Cache.Get(r.Context(), key.String())
	if err != nil || !ok {
		// Cache is best-effort; errors are logged by the store and count as a miss.
		return nil, false
	}

	var resp ollama.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logging.L(r.Context()).Warn("cache_unmarshal_error", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

// storeResponse writes v to the cache; failures only get logged.
func storeResponse(r *http.Request, store cache.Store, key cache.Key, ttl time.Duration, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logging.L(r.Context()).Warn("marshal_response_error", zap.Error(err))
		return
	}
	_ = store.Set(r.Context(), key.String(), raw, ttl)
}
