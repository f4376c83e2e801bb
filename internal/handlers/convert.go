package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"ollamagate/internal/ollama"
	"ollamagate/internal/prompt"
	"ollamagate/pkg/logging/logging"
)

// ConvertRequest is the body of POST /v1/convert.
type ConvertRequest struct {
	Messages prompt.Prompt `json:"messages"`
	ollama.ConvertOptions
}

// ConvertResponse carries the chat wire messages Ollama would receive.
type ConvertResponse struct {
	Messages []ollama.ChatMessage `json:"messages"`
}

// ConvertHandler serves POST /v1/convert. It runs the converter without
// contacting Ollama.
type ConvertHandler struct {
	Defaults ollama.ConvertOptions
}

func NewConvertHandler(defaults ollama.ConvertOptions) *ConvertHandler {
	return &ConvertHandler{Defaults: defaults}
}

func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	var req ConvertRequest
	if !decodeBody(w, r, logger, &req) {
		return
	}

	applyDefaults(&req.ConvertOptions, h.Defaults)

	if err := req.ConvertOptions.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Messages.Validate(); err != nil {
		logger.Warn("convert request rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	messages, err := ollama.ConvertToChatMessages(req.Messages, req.ConvertOptions)
	if err != nil {
		writeConversionError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ConvertResponse{Messages: messages})
}
