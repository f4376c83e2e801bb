package ollama

import "encoding/json"

// Wire roles emitted by the converter. Input roles live in package prompt.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleFunction  = "function"
)

// ChatMessage is one entry of the "messages" array sent to the chat
// endpoint. Content holds either a string or []ContentPart.
type ChatMessage struct {
	Role         string        `json:"role"`
	Content      any           `json:"content"`
	Thinking     *string       `json:"thinking,omitempty"` // set when any reasoning part exists
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	Name         string        `json:"name,omitempty"`
}

const (
	ContentPartText       = "text"
	ContentPartImageURL   = "image_url"
	ContentPartInputAudio = "input_audio"
)

type ContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ImageURL   *ImageURL   `json:"image_url,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
}

// MarshalJSON always writes "text" for text parts, empty or not. Other
// part types never carry it.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	if p.Type == ContentPartText {
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	}

	type wire ContentPart
	return json.Marshal(wire(p))
}

// ImageDetail is the rendering-fidelity hint some vision models accept.
type ImageDetail string

const (
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
	ImageDetailAuto ImageDetail = "auto"
)

type ImageURL struct {
	URL    string      `json:"url"`
	Detail ImageDetail `json:"detail,omitempty"`
}

type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type ToolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
