// Package stream defines the events produced by a streaming call and reduces
// them to a single result.
package stream

import (
	"encoding/json"

	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// Event types as they appear on the wire.
const (
	TypeStreamStart      = "stream-start"
	TypeTextStart        = "text-start"
	TypeTextDelta        = "text-delta"
	TypeTextEnd          = "text-end"
	TypeReasoningStart   = "reasoning-start"
	TypeReasoningDelta   = "reasoning-delta"
	TypeReasoningEnd     = "reasoning-end"
	TypeToolCall         = "tool-call"
	TypeToolResult       = "tool-result"
	TypeFile             = "file"
	TypeSource           = "source"
	TypeResponseMetadata = "response-metadata"
	TypeFinish           = "finish"
	TypeError            = "error"
)

// Event is one item of a model stream. The set of implementations is closed:
// only the types in this package satisfy it.
type Event interface {
	EventType() string
	isEvent()
}

// StreamStart opens a stream and carries the call warnings.
type StreamStart struct {
	Warnings []types.Warning `json:"warnings"`
}

// TextStart opens a text block.
type TextStart struct {
	ID string `json:"id"`
}

// TextDelta appends to an open text block.
type TextDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

// TextEnd closes a text block.
type TextEnd struct {
	ID string `json:"id"`
}

// ReasoningStart opens a reasoning block.
type ReasoningStart struct {
	ID string `json:"id"`
}

// ReasoningDelta appends to an open reasoning block.
type ReasoningDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

// ReasoningEnd closes a reasoning block.
type ReasoningEnd struct {
	ID string `json:"id"`
}

// ToolCall is a complete tool invocation.
type ToolCall struct {
	types.ToolCallBlock
}

// ToolResult is the result of a provider-executed tool.
type ToolResult struct {
	types.ToolResultBlock
}

// File is a generated file.
type File struct {
	types.FileBlock
}

// Source is a citation.
type Source struct {
	types.SourceBlock
}

// ResponseMetadata identifies the response being streamed.
type ResponseMetadata struct {
	types.ResponseMetadata
}

// Finish ends a stream. Empty fields leave the running values unchanged.
type Finish struct {
	FinishReason     string                 `json:"finishReason,omitempty"`
	Usage            *types.Usage           `json:"usage,omitempty"`
	ProviderMetadata types.ProviderMetadata `json:"providerMetadata,omitempty"`
}

// Error aborts a stream.
type Error struct {
	Err error `json:"-"`
}

func (StreamStart) EventType() string      { return TypeStreamStart }
func (TextStart) EventType() string        { return TypeTextStart }
func (TextDelta) EventType() string        { return TypeTextDelta }
func (TextEnd) EventType() string          { return TypeTextEnd }
func (ReasoningStart) EventType() string   { return TypeReasoningStart }
func (ReasoningDelta) EventType() string   { return TypeReasoningDelta }
func (ReasoningEnd) EventType() string     { return TypeReasoningEnd }
func (ToolCall) EventType() string         { return TypeToolCall }
func (ToolResult) EventType() string       { return TypeToolResult }
func (File) EventType() string             { return TypeFile }
func (Source) EventType() string           { return TypeSource }
func (ResponseMetadata) EventType() string { return TypeResponseMetadata }
func (Finish) EventType() string           { return TypeFinish }
func (Error) EventType() string            { return TypeError }

func (StreamStart) isEvent()      {}
func (TextStart) isEvent()        {}
func (TextDelta) isEvent()        {}
func (TextEnd) isEvent()          {}
func (ReasoningStart) isEvent()   {}
func (ReasoningDelta) isEvent()   {}
func (ReasoningEnd) isEvent()     {}
func (ToolCall) isEvent()         {}
func (ToolResult) isEvent()       {}
func (File) isEvent()             {}
func (Source) isEvent()           {}
func (ResponseMetadata) isEvent() {}
func (Finish) isEvent()           {}
func (Error) isEvent()            {}

// MarshalJSON encodes the error message.
func (e Error) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Error string `json:"error"`
	}{msg})
}

// Marshal encodes an event as a JSON object with a "type" discriminator.
func Marshal(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(ev.EventType())
	return json.Marshal(fields)
}
