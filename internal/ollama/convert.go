package ollama

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"ollamagate/internal/prompt"
)

// providerName is the ProviderMetadata key read by the converter.
const providerName = "ollama"

// SystemMessageMode controls how system messages are emitted.
type SystemMessageMode string

const (
	SystemMessageModeSystem    SystemMessageMode = "system"
	SystemMessageModeDeveloper SystemMessageMode = "developer"
	SystemMessageModeRemove    SystemMessageMode = "remove"
)

// ParseSystemMessageMode accepts the mode names; "" maps to system.
func ParseSystemMessageMode(s string) (SystemMessageMode, error) {
	switch mode := SystemMessageMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", SystemMessageModeSystem:
		return SystemMessageModeSystem, nil
	case SystemMessageModeDeveloper, SystemMessageModeRemove:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown system message mode %q", s)
	}
}

// ConvertOptions is the converter configuration. The zero value emits
// system messages as-is and uses tool_calls.
type ConvertOptions struct {
	SystemMessageMode        SystemMessageMode `json:"systemMessageMode,omitempty" yaml:"system_message_mode"`
	UseLegacyFunctionCalling bool              `json:"useLegacyFunctionCalling,omitempty" yaml:"use_legacy_function_calling"`
}

// Normalize replaces SystemMessageMode with its canonical form, so
// "Developer" or " remove " select the same rule as their lowercase names.
func (o *ConvertOptions) Normalize() error {
	mode, err := ParseSystemMessageMode(string(o.SystemMessageMode))
	if err != nil {
		return err
	}
	o.SystemMessageMode = mode
	return nil
}

// ConvertToChatMessages converts a vendor-neutral prompt into chat wire
// messages, preserving order. It fails on the first construct the chat
// format cannot represent and returns no partial output.
func ConvertToChatMessages(messages []prompt.Message, opts ConvertOptions) ([]ChatMessage, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	result := make([]ChatMessage, 0, len(messages))

	for i, m := range messages {
		var (
			converted []ChatMessage
			err       error
		)

		switch m.Role {
		case prompt.RoleSystem:
			converted = convertSystemMessage(m, opts)
		case prompt.RoleUser:
			converted, err = convertUserMessage(m)
		case prompt.RoleAssistant:
			converted, err = convertAssistantMessage(m, opts)
		case prompt.RoleTool:
			converted, err = convertToolMessage(m, opts)
		default:
			err = fmt.Errorf("%w: unsupported role %q", ErrInvalidPrompt, m.Role)
		}

		if err != nil {
			if IsUnsupportedFunctionality(err) {
				return nil, err
			}
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}

		result = append(result, converted...)
	}

	return result, nil
}

func convertSystemMessage(m prompt.Message, opts ConvertOptions) []ChatMessage {
	switch opts.SystemMessageMode {
	case SystemMessageModeRemove:
		return nil
	case SystemMessageModeDeveloper:
		return []ChatMessage{{Role: RoleDeveloper, Content: m.Content}}
	default:
		return []ChatMessage{{Role: RoleSystem, Content: m.Content}}
	}
}

func convertUserMessage(m prompt.Message) ([]ChatMessage, error) {
	if len(m.Parts) == 1 && m.Parts[0].Type == prompt.PartText {
		return []ChatMessage{{Role: RoleUser, Content: m.Parts[0].Text}}, nil
	}

	parts := make([]ContentPart, 0, len(m.Parts))

	for _, p := range m.Parts {
		part, err := convertUserPart(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	return []ChatMessage{{Role: RoleUser, Content: parts}}, nil
}

func convertUserPart(p prompt.Part) (ContentPart, error) {
	switch p.Type {
	case prompt.PartText:
		return ContentPart{Type: ContentPartText, Text: p.Text}, nil

	case prompt.PartImage:
		imageURL := &ImageURL{
			URL: "data:" + p.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Image),
		}
		if detail, ok := imageDetail(p.ProviderMetadata); ok {
			imageURL.Detail = detail
		}
		return ContentPart{Type: ContentPartImageURL, ImageURL: imageURL}, nil

	case prompt.PartFile:
		if p.URL != "" {
			return ContentPart{}, unsupported("File content parts with URL data")
		}

		var format string
		switch p.MimeType {
		case "audio/wav":
			format = "wav"
		case "audio/mp3", "audio/mpeg":
			format = "mp3"
		default:
			return ContentPart{}, unsupported("File content part type %s in user messages", p.MimeType)
		}

		return ContentPart{
			Type: ContentPartInputAudio,
			InputAudio: &InputAudio{
				Data:   base64.StdEncoding.EncodeToString(p.Data),
				Format: format,
			},
		}, nil

	default:
		return ContentPart{}, fmt.Errorf("%w: %s part in user message", ErrInvalidPrompt, p.Type)
	}
}

func imageDetail(md prompt.ProviderMetadata) (ImageDetail, bool) {
	v, ok := md[providerName]["imageDetail"].(string)
	if !ok {
		return "", false
	}
	return ImageDetail(v), true
}

func convertAssistantMessage(m prompt.Message, opts ConvertOptions) ([]ChatMessage, error) {
	var (
		text         strings.Builder
		reasoning    strings.Builder
		hasReasoning bool
		toolCalls    []ToolCall
	)

	for _, p := range m.Parts {
		switch p.Type {
		case prompt.PartText:
			text.WriteString(p.Text)
		case prompt.PartReasoning:
			reasoning.WriteString(p.Text)
			hasReasoning = true
		case prompt.PartToolCall:
			args, err := stringify(p.Args)
			if err != nil {
				return nil, fmt.Errorf("tool call %q arguments: %w", p.ToolCallID, err)
			}
			toolCalls = append(toolCalls, ToolCall{
				Type: "function",
				ID:   p.ToolCallID,
				Function: FunctionCall{
					Name:      p.ToolName,
					Arguments: args,
				},
			})
		default:
			return nil, fmt.Errorf("%w: %s part in assistant message", ErrInvalidPrompt, p.Type)
		}
	}

	msg := ChatMessage{
		Role:    RoleAssistant,
		Content: text.String(),
	}

	if hasReasoning {
		thinking := reasoning.String()
		msg.Thinking = &thinking
	}

	if len(toolCalls) > 0 {
		if opts.UseLegacyFunctionCalling {
			// legacy function calling carries a single call per message
			fc := toolCalls[0].Function
			msg.FunctionCall = &fc
		} else {
			msg.ToolCalls = toolCalls
		}
	}

	return []ChatMessage{msg}, nil
}

func convertToolMessage(m prompt.Message, opts ConvertOptions) ([]ChatMessage, error) {
	result := make([]ChatMessage, 0, len(m.Parts))

	for _, p := range m.Parts {
		if p.Type != prompt.PartToolResult {
			return nil, fmt.Errorf("%w: %s part in tool message", ErrInvalidPrompt, p.Type)
		}

		content, err := stringify(p.Result)
		if err != nil {
			return nil, fmt.Errorf("tool result %q: %w", p.ToolCallID, err)
		}

		if opts.UseLegacyFunctionCalling {
			result = append(result, ChatMessage{
				Role:    RoleFunction,
				Content: content,
				Name:    p.ToolName,
			})
			continue
		}

		result = append(result, ChatMessage{
			Role:       RoleTool,
			Content:    content,
			ToolCallID: p.ToolCallID,
		})
	}

	return result, nil
}

// stringify serializes v as compact JSON without HTML escaping.
func stringify(v any) (string, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return "", err
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DroppedLegacyCalls counts tool calls that legacy function calling
// discards because only the first call of a message is kept.
func DroppedLegacyCalls(messages []prompt.Message) int {
	dropped := 0

	for _, m := range messages {
		if m.Role != prompt.RoleAssistant {
			continue
		}

		calls := 0
		for _, p := range m.Parts {
			if p.Type == prompt.PartToolCall {
				calls++
			}
		}
		if calls > 1 {
			dropped += calls - 1
		}
	}

	return dropped
}
