package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// chatModel is a chat completions handle backed by the Eino OpenAI model.
type chatModel struct {
	modelID   string
	chatModel model.ToolCallingChatModel
}

func newChatModel(ctx context.Context, t *OpenAITransport, modelID string) (*chatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:     t.apiKey,
		BaseURL:    t.baseURL,
		Model:      modelID,
		HTTPClient: t.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &chatModel{modelID: modelID, chatModel: cm}, nil
}

// prepare converts call options into Eino messages and options, binding tools
// when the call declares any.
func (m *chatModel) prepare(opts *types.CallOptions) (model.ToolCallingChatModel, []*schema.Message, []model.Option, error) {
	if opts == nil {
		opts = &types.CallOptions{}
	}

	cm := m.chatModel
	if len(opts.Tools) > 0 {
		var err error
		cm, err = cm.WithTools(ConvertToEinoTools(opts.Tools))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	var modelOpts []model.Option
	if opts.MaxOutputTokens != nil {
		modelOpts = append(modelOpts, openai.WithMaxCompletionTokens(*opts.MaxOutputTokens))
	}
	if opts.Temperature != nil {
		modelOpts = append(modelOpts, model.WithTemperature(float32(*opts.Temperature)))
	}
	if opts.TopP != nil {
		modelOpts = append(modelOpts, model.WithTopP(float32(*opts.TopP)))
	}
	if len(opts.StopSequences) > 0 {
		modelOpts = append(modelOpts, model.WithStop(opts.StopSequences))
	}

	return cm, ConvertToEinoMessages(opts.Prompt), modelOpts, nil
}

// Generate runs a non-streaming chat completion.
func (m *chatModel) Generate(ctx context.Context, opts *types.CallOptions) (*types.Result, error) {
	cm, msgs, modelOpts, err := m.prepare(opts)
	if err != nil {
		return nil, err
	}
	ctx = withCallHeaders(ctx, callHeaders(opts))

	msg, err := cm.Generate(ctx, msgs, modelOpts...)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &types.Result{
		Content:      []types.ContentBlock{},
		FinishReason: types.FinishUnknown,
		Warnings:     []types.Warning{},
		Response:     types.ResponseMetadata{ModelID: m.modelID, Timestamp: &now},
	}
	if msg.ReasoningContent != "" {
		result.Content = append(result.Content, types.ReasoningBlock{Text: msg.ReasoningContent})
	}
	if msg.Content != "" {
		result.Content = append(result.Content, types.TextBlock{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		result.Content = append(result.Content, types.ToolCallBlock{
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			Input:      tc.Function.Arguments,
		})
	}
	if meta := msg.ResponseMeta; meta != nil {
		result.FinishReason = mapChatFinishReason(meta.FinishReason)
		if meta.Usage != nil {
			result.Usage = chatUsage(meta.Usage)
		}
	}
	return result, nil
}

// Stream runs a streaming chat completion. Chunks are translated into
// stream events on a producer goroutine.
func (m *chatModel) Stream(ctx context.Context, opts *types.CallOptions) (*stream.Stream, error) {
	cm, msgs, modelOpts, err := m.prepare(opts)
	if err != nil {
		return nil, err
	}
	ctx = withCallHeaders(ctx, callHeaders(opts))

	reader, err := cm.Stream(ctx, msgs, modelOpts...)
	if err != nil {
		return nil, err
	}

	out, w := stream.Pipe(16, nil)
	go func() {
		defer w.Close()
		defer reader.Close()
		translateChatStream(reader, m.modelID, w)
	}()
	return out, nil
}

// chatToolCall accumulates a streamed tool call.
type chatToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// translateChatStream converts Eino message chunks into stream events. It
// stops early when the reader side of w is closed.
func translateChatStream(reader *schema.StreamReader[*schema.Message], modelID string, w *schema.StreamWriter[stream.Event]) {
	send := func(ev stream.Event) bool {
		return !w.Send(ev, nil)
	}

	now := time.Now().UTC()
	if !send(stream.StreamStart{Warnings: []types.Warning{}}) ||
		!send(stream.ResponseMetadata{ResponseMetadata: types.ResponseMetadata{ModelID: modelID, Timestamp: &now}}) {
		return
	}

	var (
		textID, reasoningID string
		toolCalls           = map[int]*chatToolCall{}
		finish              = stream.Finish{FinishReason: types.FinishUnknown}
	)

	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.Send(nil, err)
			return
		}

		if chunk.ReasoningContent != "" {
			if reasoningID == "" {
				reasoningID = ulid.Make().String()
				if !send(stream.ReasoningStart{ID: reasoningID}) {
					return
				}
			}
			if !send(stream.ReasoningDelta{ID: reasoningID, Delta: chunk.ReasoningContent}) {
				return
			}
		}

		if chunk.Content != "" {
			if textID == "" {
				textID = ulid.Make().String()
				if !send(stream.TextStart{ID: textID}) {
					return
				}
			}
			if !send(stream.TextDelta{ID: textID, Delta: chunk.Content}) {
				return
			}
		}

		for i, tc := range chunk.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			acc, ok := toolCalls[index]
			if !ok {
				acc = &chatToolCall{}
				toolCalls[index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.arguments.WriteString(tc.Function.Arguments)
		}

		if meta := chunk.ResponseMeta; meta != nil {
			if meta.FinishReason != "" {
				finish.FinishReason = mapChatFinishReason(meta.FinishReason)
			}
			if meta.Usage != nil {
				usage := chatUsage(meta.Usage)
				finish.Usage = &usage
			}
		}
	}

	if reasoningID != "" && !send(stream.ReasoningEnd{ID: reasoningID}) {
		return
	}
	if textID != "" && !send(stream.TextEnd{ID: textID}) {
		return
	}

	indexes := make([]int, 0, len(toolCalls))
	for index := range toolCalls {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	for _, index := range indexes {
		tc := toolCalls[index]
		if !send(stream.ToolCall{ToolCallBlock: types.ToolCallBlock{
			ToolCallID: tc.id,
			ToolName:   tc.name,
			Input:      tc.arguments.String(),
		}}) {
			return
		}
	}

	send(finish)
}

func mapChatFinishReason(reason string) string {
	switch reason {
	case "stop":
		return types.FinishStop
	case "length":
		return types.FinishLength
	case "tool_calls", "function_call":
		return types.FinishToolCalls
	case "content_filter":
		return types.FinishContentFilter
	default:
		return types.FinishUnknown
	}
}

func chatUsage(u *schema.TokenUsage) types.Usage {
	usage := types.Usage{
		InputTokens:  types.Int64(int64(u.PromptTokens)),
		OutputTokens: types.Int64(int64(u.CompletionTokens)),
		TotalTokens:  types.Int64(int64(u.TotalTokens)),
	}
	if u.PromptTokenDetails.CachedTokens > 0 {
		usage.CachedInputTokens = types.Int64(int64(u.PromptTokenDetails.CachedTokens))
	}
	return usage
}

func callHeaders(opts *types.CallOptions) map[string]string {
	if opts == nil {
		return nil
	}
	return opts.Headers
}

// ConvertToEinoMessages converts a prompt to Eino messages.
func ConvertToEinoMessages(prompt []types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(prompt))

	for _, msg := range prompt {
		switch msg.Role {
		case types.RoleSystem:
			result = append(result, schema.SystemMessage(msg.Text()))

		case types.RoleUser:
			result = append(result, userMessage(msg))

		case types.RoleAssistant:
			out := &schema.Message{Role: schema.Assistant}
			if !msg.Structured() {
				out.Content = msg.Content
			}
			for _, part := range msg.Parts {
				switch part.Type {
				case types.PartText, types.PartInputText:
					out.Content += part.Text
				case types.PartReasoning:
					out.ReasoningContent += part.Text
				case types.PartToolCall:
					out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
						ID:   part.ToolCallID,
						Type: "function",
						Function: schema.FunctionCall{
							Name:      part.ToolName,
							Arguments: rawToString(part.Input, "{}"),
						},
					})
				}
			}
			result = append(result, out)

		case types.RoleTool:
			if !msg.Structured() {
				result = append(result, schema.ToolMessage(msg.Content, ""))
				continue
			}
			for _, part := range msg.Parts {
				if part.Type != types.PartToolResult {
					continue
				}
				result = append(result, schema.ToolMessage(rawToString(part.Output, ""), part.ToolCallID))
			}
		}
	}

	return result
}

// userMessage keeps plain text messages as text and switches to multi-part
// content only when the message carries images.
func userMessage(msg types.Message) *schema.Message {
	hasImage := false
	for _, part := range msg.Parts {
		if part.Type == types.PartImage || part.Type == types.PartInputImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return schema.UserMessage(msg.Text())
	}

	out := &schema.Message{Role: schema.User}
	for _, part := range msg.Parts {
		switch part.Type {
		case types.PartText, types.PartInputText:
			out.MultiContent = append(out.MultiContent, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case types.PartImage, types.PartInputImage:
			out.MultiContent = append(out.MultiContent, schema.ChatMessagePart{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: imageURL(part)},
			})
		}
	}
	return out
}

// imageURL returns a URL for an image part, building a data URL from inline
// data when needed.
func imageURL(part types.Part) string {
	ref := part.Image
	if ref == "" {
		ref = part.ImageURL
	}
	if ref == "" && part.Data != "" {
		ref = part.Data
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	mediaType := part.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + ref
}

// rawToString returns JSON strings unquoted and any other JSON value as is.
func rawToString(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
