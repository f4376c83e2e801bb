package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ollamagate/internal/metrics"
	"ollamagate/internal/ollama"
)

// errorBody is the JSON shape of every non-2xx gateway answer.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON sends v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// decodeBody decodes the request body into v and answers 400 or 413 when
// it cannot. It reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.Warn("request body too large", zap.Int64("limit", maxErr.Limit))
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", err.Error())
			return false
		}

		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// writeConversionError maps converter failures: unsupported constructs
// are 422, malformed prompts are 400.
func writeConversionError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if ollama.IsUnsupportedFunctionality(err) {
		metrics.ConversionErrorsTotal.WithLabelValues("unsupported_functionality").Inc()
		logger.Info("prompt not convertible", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "unsupported_functionality", err.Error())
		return
	}

	metrics.ConversionErrorsTotal.WithLabelValues("invalid_prompt").Inc()
	logger.Warn("invalid prompt", zap.Error(err))
	writeError(w, http.StatusBadRequest, "invalid_prompt", err.Error())
}

// writeUpstreamError maps Ollama failures to 502, or 504 when the
// request deadline ran out first.
func writeUpstreamError(w http.ResponseWriter, endpoint string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "timeout").Inc()
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", err.Error())
		return
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()

	var upErr *ollama.UpstreamError
	if errors.As(err, &upErr) {
		writeError(w, http.StatusBadGateway, "upstream_error", upErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
}
