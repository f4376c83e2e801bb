package ollama

// Response shapes returned by the OpenAI-compatible endpoints of an
// Ollama server.

type providerChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type providerUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type providerChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []providerChatChoice `json:"choices"`
	Usage   *providerUsage       `json:"usage,omitempty"`
}

type providerCompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Logprobs    *int     `json:"logprobs,omitempty"`
}

type providerCompletionChoice struct {
	Index        int                 `json:"index"`
	Text         string              `json:"text"`
	Logprobs     *CompletionLogProbs `json:"logprobs"`
	FinishReason string              `json:"finish_reason,omitempty"`
}

type providerCompletionResponse struct {
	ID      string                     `json:"id"`
	Object  string                     `json:"object"`
	Created int64                      `json:"created"`
	Model   string                     `json:"model"`
	Choices []providerCompletionChoice `json:"choices"`
	Usage   *providerUsage             `json:"usage,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (u *providerUsage) toUsage() *Usage {
	// always present in gateway responses, even if upstream omitted it
	out := &Usage{}
	if u != nil {
		out.PromptTokens = u.PromptTokens
		out.CompletionTokens = u.CompletionTokens
		out.TotalTokens = u.TotalTokens
	}
	return out
}
