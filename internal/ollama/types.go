package ollama

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ollamagate/internal/prompt"
)

// ChatRequest is a vendor-neutral chat request plus conversion options.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages prompt.Prompt `json:"messages"`

	ConvertOptions

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

func (r *ChatRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}

	if err := r.Messages.Validate(); err != nil {
		return err
	}

	if err := r.ConvertOptions.Normalize(); err != nil {
		return err
	}

	return validateSampling(r.Temperature, r.TopP, r.MaxTokens)
}

// Payload converts the request into the body posted upstream.
func (r *ChatRequest) Payload() (*ChatPayload, error) {
	messages, err := ConvertToChatMessages(r.Messages, r.ConvertOptions)
	if err != nil {
		return nil, err
	}

	return &ChatPayload{
		Model:       r.Model,
		Messages:    messages,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		MaxTokens:   r.MaxTokens,
		Stop:        r.Stop,
	}, nil
}

// ChatPayload is the upstream chat-completion request body.
type ChatPayload struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID      string       `json:"id,omitempty"`
	Created time.Time    `json:"created,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// CompletionRequest is a plain text completion. Logprobs asks for that
// many top candidates per token; 0 disables log probabilities.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Logprobs    int      `json:"logprobs,omitempty"`
}

func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	if r.Logprobs < 0 || r.Logprobs > 20 {
		return errors.New("logprobs must be between 0 and 20")
	}
	return validateSampling(r.Temperature, nil, r.MaxTokens)
}

type CompletionChoice struct {
	Index        int       `json:"index"`
	Text         string    `json:"text"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Logprobs     []LogProb `json:"logprobs,omitempty"`
}

type CompletionResponse struct {
	ID      string             `json:"id,omitempty"`
	Created time.Time          `json:"created,omitempty"`
	Model   string             `json:"model,omitempty"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

func validateSampling(temperature, topP *float64, maxTokens int) error {
	if temperature != nil && (*temperature < 0 || *temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if topP != nil && (*topP < 0 || *topP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	if maxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", maxTokens)
	}
	return nil
}

type Client interface {
	Chat(ctx context.Context, payload *ChatPayload) (*ChatResponse, error)
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
