package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	maxRequestSize = 16 * 1024 * 1024 // inline images and audio make chat bodies large
	maxErrorBody   = 64 * 1024

	chatPath       = "/v1/chat/completions"
	completionPath = "/v1/completions"
)

// UpstreamError is a non-2xx answer from the Ollama server.
type UpstreamError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("ollama: upstream %d: %s (%s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("ollama: upstream %d: %s", e.StatusCode, e.Message)
}

func (c *client) Chat(parentCtx context.Context, payload *ChatPayload) (*ChatResponse, error) {
	start := time.Now()

	if payload == nil {
		return nil, fmt.Errorf("ollama: chat payload is nil")
	}
	if payload.Model == "" || len(payload.Messages) == 0 {
		return nil, fmt.Errorf("ollama: chat payload needs a model and at least one message")
	}

	c.logger.Debug("chat request starting",
		zap.String("model", payload.Model),
		zap.Int("message_count", len(payload.Messages)),
	)

	var pResp providerChatResponse
	if err := c.post(parentCtx, chatPath, payload, &pResp); err != nil {
		c.logger.Error("chat request failed",
			zap.String("model", payload.Model),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	if len(pResp.Choices) == 0 {
		c.logger.Error("ollama returned no choices",
			zap.String("model", payload.Model),
		)
		return nil, fmt.Errorf("ollama: upstream returned no choices")
	}

	out := &ChatResponse{
		ID:      pResp.ID,
		Created: time.Unix(pResp.Created, 0),
		Model:   pResp.Model,
		Choices: make([]ChatChoice, 0, len(pResp.Choices)),
		Usage:   pResp.Usage.toUsage(),
	}

	for _, ch := range pResp.Choices {
		out.Choices = append(out.Choices, ChatChoice{
			Index:        ch.Index,
			Message:      ch.Message,
			FinishReason: ch.FinishReason,
		})
	}

	c.logger.Info("chat request completed",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

func (c *client) Complete(parentCtx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("ollama: completion request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("ollama: invalid request: %w", err)
	}

	pReq := providerCompletionRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	if req.Logprobs > 0 {
		n := req.Logprobs
		pReq.Logprobs = &n
	}

	var pResp providerCompletionResponse
	if err := c.post(parentCtx, completionPath, pReq, &pResp); err != nil {
		c.logger.Error("completion request failed",
			zap.String("model", req.Model),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	if len(pResp.Choices) == 0 {
		return nil, fmt.Errorf("ollama: upstream returned no choices")
	}

	out := &CompletionResponse{
		ID:      pResp.ID,
		Created: time.Unix(pResp.Created, 0),
		Model:   pResp.Model,
		Choices: make([]CompletionChoice, 0, len(pResp.Choices)),
		Usage:   pResp.Usage.toUsage(),
	}

	for _, ch := range pResp.Choices {
		out.Choices = append(out.Choices, CompletionChoice{
			Index:        ch.Index,
			Text:         ch.Text,
			FinishReason: ch.FinishReason,
			Logprobs:     MapCompletionLogProbs(ch.Logprobs),
		})
	}

	c.logger.Info("completion request completed",
		zap.String("model", out.Model),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
		zap.Bool("logprobs", req.Logprobs > 0),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// post sends body as JSON to path and decodes a 2xx answer into out.
func (c *client) post(parentCtx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}

	if len(bodyBytes) > maxRequestSize {
		return fmt.Errorf("ollama: request too large (%d bytes, max %d)", len(bodyBytes), maxRequestSize)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("ollama: build HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		upErr := &UpstreamError{StatusCode: resp.StatusCode}

		var perr providerErrorResponse
		if err := json.Unmarshal(raw, &perr); err == nil && perr.Error.Message != "" {
			upErr.Type = perr.Error.Type
			upErr.Message = perr.Error.Message
		} else {
			upErr.Message = truncate(string(raw), 200)
		}

		c.logger.Error("ollama upstream error",
			zap.String("path", path),
			zap.Int("status", upErr.StatusCode),
			zap.String("error_type", upErr.Type),
			zap.String("error_message", upErr.Message),
		)
		return upErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode upstream response: %w", err)
	}
	return nil
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
