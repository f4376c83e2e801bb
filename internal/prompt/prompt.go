package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType tags the variant carried by a Part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartFile       PartType = "file"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

var (
	errInvalidRole    = errors.New("invalid role")
	errInvalidPart    = errors.New("invalid content part")
	errEmptyMessages  = errors.New("at least one message is required")
	errMissingToolRef = errors.New("tool call id and tool name are required")
)

// ProviderMetadata carries per-provider hints keyed by provider name,
// e.g. {"ollama": {"imageDetail": "low"}}.
type ProviderMetadata map[string]map[string]any

// Part is one typed segment of a message. Which fields are meaningful
// depends on Type.
type Part struct {
	Type PartType `json:"type"`

	// text, reasoning
	Text string `json:"text,omitempty"`

	// image
	Image []byte `json:"image,omitempty"`

	// file: inline Data or a URL reference
	Data []byte `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`

	// image, file
	MimeType string `json:"mimeType,omitempty"`

	ProviderMetadata ProviderMetadata `json:"providerMetadata,omitempty"`

	// tool-call, tool-result
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`

	// Args and Result are serialized as JSON when sent upstream.
	// Values decoded from JSON are kept as json.RawMessage.
	Args   any `json:"args,omitempty"`
	Result any `json:"result,omitempty"`
}

// UnmarshalJSON keeps structured tool values raw so their key order
// survives re-serialization.
func (p *Part) UnmarshalJSON(data []byte) error {
	type alias Part
	var raw struct {
		alias
		Args   json.RawMessage `json:"args,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode part: %w", err)
	}

	*p = Part(raw.alias)
	p.Args = nil
	p.Result = nil

	if len(raw.Args) > 0 {
		p.Args = raw.Args
	}
	if len(raw.Result) > 0 {
		p.Result = raw.Result
	}
	return nil
}

func Text(text string) Part {
	return Part{Type: PartText, Text: text}
}

func Reasoning(text string) Part {
	return Part{Type: PartReasoning, Text: text}
}

func Image(data []byte, mimeType string) Part {
	return Part{Type: PartImage, Image: data, MimeType: mimeType}
}

func File(data []byte, mimeType string) Part {
	return Part{Type: PartFile, Data: data, MimeType: mimeType}
}

func FileURL(url, mimeType string) Part {
	return Part{Type: PartFile, URL: url, MimeType: mimeType}
}

func ToolCall(id, name string, args any) Part {
	return Part{Type: PartToolCall, ToolCallID: id, ToolName: name, Args: args}
}

func ToolResult(id, name string, result any) Part {
	return Part{Type: PartToolResult, ToolCallID: id, ToolName: name, Result: result}
}

// Message is a vendor-neutral chat message. System messages use Content,
// every other role uses Parts.
type Message struct {
	Role    Role
	Content string
	Parts   []Part
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(parts ...Part) Message {
	return Message{Role: RoleUser, Parts: parts}
}

func AssistantMessage(parts ...Part) Message {
	return Message{Role: RoleAssistant, Parts: parts}
}

func ToolMessage(parts ...Part) Message {
	return Message{Role: RoleTool, Parts: parts}
}

// UnmarshalJSON accepts content as a string or an array of parts.
// A string on a non-system role becomes a single text part.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	m.Role = Role(strings.TrimSpace(raw.Role))
	m.Content = ""
	m.Parts = nil

	content := []byte(strings.TrimSpace(string(raw.Content)))
	if len(content) == 0 || string(content) == "null" {
		return nil
	}

	switch content[0] {
	case '"':
		var text string
		if err := json.Unmarshal(content, &text); err != nil {
			return fmt.Errorf("decode message content: %w", err)
		}
		if m.Role == RoleSystem {
			m.Content = text
		} else {
			m.Parts = []Part{Text(text)}
		}
	case '[':
		if err := json.Unmarshal(content, &m.Parts); err != nil {
			return fmt.Errorf("decode message parts: %w", err)
		}
		if m.Role == RoleSystem {
			m.Content = joinText(m.Parts)
			m.Parts = nil
		}
	default:
		return fmt.Errorf("message content must be a string or an array of parts")
	}

	return nil
}

// MarshalJSON writes system content as a string and parts as an array.
func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Parts
	if m.Role == RoleSystem {
		content = m.Content
	}

	return json.Marshal(struct {
		Role    Role `json:"role"`
		Content any  `json:"content"`
	}{m.Role, content})
}

func joinText(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Prompt is an ordered conversation.
type Prompt []Message

// Validate checks roles and that every part is allowed for its role.
func (p Prompt) Validate() error {
	if len(p) == 0 {
		return errEmptyMessages
	}

	for i, m := range p {
		if err := m.validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return nil
}

func (m Message) validate() error {
	var allowed []PartType

	switch m.Role {
	case RoleSystem:
		return nil
	case RoleUser:
		allowed = []PartType{PartText, PartImage, PartFile}
	case RoleAssistant:
		allowed = []PartType{PartText, PartReasoning, PartToolCall}
	case RoleTool:
		allowed = []PartType{PartToolResult}
	default:
		return fmt.Errorf("%w %q", errInvalidRole, m.Role)
	}

	for j, part := range m.Parts {
		if !containsType(allowed, part.Type) {
			return fmt.Errorf("parts[%d]: %w: %q not allowed in %s messages", j, errInvalidPart, part.Type, m.Role)
		}

		switch part.Type {
		case PartImage:
			if part.MimeType == "" {
				return fmt.Errorf("parts[%d]: %w: image requires mimeType", j, errInvalidPart)
			}
		case PartFile:
			if part.MimeType == "" {
				return fmt.Errorf("parts[%d]: %w: file requires mimeType", j, errInvalidPart)
			}
			if part.URL == "" && part.Data == nil {
				return fmt.Errorf("parts[%d]: %w: file requires data or url", j, errInvalidPart)
			}
		case PartToolCall, PartToolResult:
			if part.ToolCallID == "" || part.ToolName == "" {
				return fmt.Errorf("parts[%d]: %w", j, errMissingToolRef)
			}
		}
	}

	return nil
}

func containsType(types []PartType, t PartType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
