package types

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part types understood by the transports. The input_* shapes are legacy
// Responses-style parts that are rewritten to their generic equivalents.
const (
	PartText       = "text"
	PartImage      = "image"
	PartFile       = "file"
	PartReasoning  = "reasoning"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
	PartInputText  = "input_text"
	PartInputImage = "input_image"
)

// Message is one entry of a prompt. Content is either plain text (Content) or
// an ordered list of typed parts (Parts); Parts wins when non-nil.
type Message struct {
	Role            Role            `json:"role"`
	Content         string          `json:"-"`
	Parts           []Part          `json:"-"`
	ProviderOptions ProviderOptions `json:"providerOptions,omitempty"`
}

// Part is a typed piece of structured message content.
type Part struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	// Image references. Image is the generic field; ImageURL and FileID are the
	// two legacy input_image reference fields.
	Image    string `json:"image,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	FileID   string `json:"file_id,omitempty"`

	// File parts
	Data      string `json:"data,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`

	// Tool call / tool result parts
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`

	ProviderOptions ProviderOptions `json:"providerOptions,omitempty"`
}

// TextMessage creates a message with plain string content.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// Structured reports whether the message carries typed parts.
func (m Message) Structured() bool {
	return m.Parts != nil
}

// Text returns the concatenated text of the message: the plain content, or
// the text of every text-bearing part in order.
func (m Message) Text() string {
	if !m.Structured() {
		return m.Content
	}
	var text string
	for _, p := range m.Parts {
		if p.Type == PartText || p.Type == PartInputText {
			text += p.Text
		}
	}
	return text
}

// Clone returns a copy of the message that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	out.ProviderOptions = m.ProviderOptions.Clone()
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			p.ProviderOptions = p.ProviderOptions.Clone()
			out.Parts[i] = p
		}
	}
	return out
}

// MarshalJSON encodes content as a string for plain messages and as an array
// of parts for structured ones.
func (m Message) MarshalJSON() ([]byte, error) {
	type Alias Message
	aux := struct {
		Alias
		Content any `json:"content"`
	}{
		Alias: Alias(m),
	}
	if m.Structured() {
		aux.Content = m.Parts
	} else {
		aux.Content = m.Content
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts content as either a string or an array of parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	type Alias Message
	aux := struct {
		*Alias
		Content json.RawMessage `json:"content"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Content) == 0 || string(aux.Content) == "null" {
		return nil
	}

	switch aux.Content[0] {
	case '"':
		return json.Unmarshal(aux.Content, &m.Content)
	case '[':
		m.Parts = []Part{}
		return json.Unmarshal(aux.Content, &m.Parts)
	default:
		return fmt.Errorf("message content must be a string or an array of parts")
	}
}
