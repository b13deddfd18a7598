package types

import (
	"encoding/json"
	"maps"
	"time"
)

// Finish reasons reported by the transports.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool-calls"
	FinishContentFilter = "content-filter"
	FinishError         = "error"
	FinishUnknown       = "unknown"
)

// ContentBlock is one finished piece of generated content.
type ContentBlock interface {
	BlockType() string
}

// TextBlock is a completed text block.
type TextBlock struct {
	Text             string           `json:"text"`
	ProviderMetadata ProviderMetadata `json:"providerMetadata,omitempty"`
}

func (TextBlock) BlockType() string { return "text" }

func (b TextBlock) MarshalJSON() ([]byte, error) {
	type alias TextBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.BlockType(), alias(b)})
}

// ReasoningBlock is a completed reasoning (thinking) block.
type ReasoningBlock struct {
	Text             string           `json:"text"`
	ProviderMetadata ProviderMetadata `json:"providerMetadata,omitempty"`
}

func (ReasoningBlock) BlockType() string { return "reasoning" }

func (b ReasoningBlock) MarshalJSON() ([]byte, error) {
	type alias ReasoningBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.BlockType(), alias(b)})
}

// ToolCallBlock is a tool invocation requested by the model. Input is the raw
// JSON argument string.
type ToolCallBlock struct {
	ToolCallID       string           `json:"toolCallId"`
	ToolName         string           `json:"toolName"`
	Input            string           `json:"input"`
	ProviderExecuted bool             `json:"providerExecuted,omitempty"`
	ProviderMetadata ProviderMetadata `json:"providerMetadata,omitempty"`
}

func (ToolCallBlock) BlockType() string { return "tool-call" }

func (b ToolCallBlock) MarshalJSON() ([]byte, error) {
	type alias ToolCallBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.BlockType(), alias(b)})
}

// ToolResultBlock is the result of a provider-executed tool.
type ToolResultBlock struct {
	ToolCallID       string           `json:"toolCallId"`
	ToolName         string           `json:"toolName"`
	Result           json.RawMessage  `json:"result,omitempty"`
	IsError          bool             `json:"isError,omitempty"`
	ProviderMetadata ProviderMetadata `json:"providerMetadata,omitempty"`
}

func (ToolResultBlock) BlockType() string { return "tool-result" }

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	type alias ToolResultBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.BlockType(), alias(b)})
}

// FileBlock is a generated file. Data is base64 encoded.
type FileBlock struct {
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
}

func (FileBlock) BlockType() string { return "file" }

func (b FileBlock) MarshalJSON() ([]byte, error) {
	type alias FileBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.BlockType(), alias(b)})
}

// SourceBlock is a citation the model attached to its answer.
type SourceBlock struct {
	SourceType string `json:"sourceType"` // "url" | "document"
	ID         string `json:"id"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	MediaType  string `json:"mediaType,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

func (SourceBlock) BlockType() string { return "source" }

func (b SourceBlock) MarshalJSON() ([]byte, error) {
	type alias SourceBlock
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.BlockType(), alias(b)})
}

// ProviderMetadata is provider-scoped response metadata.
type ProviderMetadata map[string]map[string]any

// Clone copies both map levels.
func (p ProviderMetadata) Clone() ProviderMetadata {
	if p == nil {
		return nil
	}
	out := make(ProviderMetadata, len(p))
	for provider, scoped := range p {
		out[provider] = maps.Clone(scoped)
	}
	return out
}

// Usage holds token counts. Every count is optional.
type Usage struct {
	InputTokens       *int64 `json:"inputTokens,omitempty"`
	OutputTokens      *int64 `json:"outputTokens,omitempty"`
	TotalTokens       *int64 `json:"totalTokens,omitempty"`
	ReasoningTokens   *int64 `json:"reasoningTokens,omitempty"`
	CachedInputTokens *int64 `json:"cachedInputTokens,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Warning reports a call setting the transport could not honor.
type Warning struct {
	Type    string `json:"type"` // "unsupported-setting" | "unsupported-tool" | "other"
	Setting string `json:"setting,omitempty"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResponseMetadata identifies the response the transport produced.
type ResponseMetadata struct {
	ID        string            `json:"id,omitempty"`
	ModelID   string            `json:"modelId,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Result is the aggregated, non-streaming outcome of one call.
type Result struct {
	Content          []ContentBlock   `json:"content"`
	FinishReason     string           `json:"finishReason"`
	Usage            Usage            `json:"usage"`
	ProviderMetadata ProviderMetadata `json:"providerMetadata,omitempty"`
	Warnings         []Warning        `json:"warnings"`
	Response         ResponseMetadata `json:"response"`
}

// Text returns the concatenation of every text block.
func (r *Result) Text() string {
	var text string
	for _, b := range r.Content {
		if tb, ok := b.(TextBlock); ok {
			text += tb.Text
		}
	}
	return text
}
