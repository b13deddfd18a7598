package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// responsesHandle is a Responses API handle. Requests are always streamed;
// Generate collects the stream.
type responsesHandle struct {
	client  openai.Client
	modelID string
}

// Generate streams the call and collects it into a result.
func (h *responsesHandle) Generate(ctx context.Context, opts *types.CallOptions) (*types.Result, error) {
	s, err := h.Stream(ctx, opts)
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx, s, stream.CollectOptions{})
}

// Stream posts the request and translates the server-sent events.
func (h *responsesHandle) Stream(ctx context.Context, opts *types.CallOptions) (*stream.Stream, error) {
	if opts == nil {
		opts = &types.CallOptions{}
	}
	body, warnings := buildResponsesRequest(h.modelID, opts)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses request: %w", err)
	}

	reqOpts := []option.RequestOption{
		option.WithRequestBody("application/json", payload),
		option.WithHeader("Accept", "text/event-stream"),
	}
	for k, v := range opts.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	var raw *http.Response
	if err := h.client.Post(ctx, "responses", nil, &raw, reqOpts...); err != nil {
		return nil, err
	}

	events := ssestream.NewStream[responsesEvent](ssestream.NewDecoder(raw), nil)
	out, w := stream.Pipe(16, flattenHeaders(raw.Header))
	go func() {
		defer w.Close()
		defer events.Close()
		translateResponsesStream(events, warnings, w)
	}()
	return out, nil
}

// responsesRequest is the JSON body of a streamed Responses API call.
type responsesRequest struct {
	Model              string           `json:"model"`
	Input              []map[string]any `json:"input"`
	Instructions       string           `json:"instructions,omitempty"`
	Stream             bool             `json:"stream"`
	Store              *bool            `json:"store,omitempty"`
	Temperature        *float64         `json:"temperature,omitempty"`
	TopP               *float64         `json:"top_p,omitempty"`
	MaxOutputTokens    *int             `json:"max_output_tokens,omitempty"`
	Tools              []map[string]any `json:"tools,omitempty"`
	PreviousResponseID string           `json:"previous_response_id,omitempty"`
	Conversation       string           `json:"conversation,omitempty"`
	ParallelToolCalls  *bool            `json:"parallel_tool_calls,omitempty"`
	User               string           `json:"user,omitempty"`
	PromptCacheKey     string           `json:"prompt_cache_key,omitempty"`
	ServiceTier        string           `json:"service_tier,omitempty"`
	Include            []string         `json:"include,omitempty"`
	Reasoning          map[string]any   `json:"reasoning,omitempty"`
	Text               map[string]any   `json:"text,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
}

// buildResponsesRequest maps call options to a request body. Settings the
// Responses API cannot honor are reported as warnings.
func buildResponsesRequest(modelID string, opts *types.CallOptions) (*responsesRequest, []types.Warning) {
	po := opts.ProviderOptions
	req := &responsesRequest{
		Model:              modelID,
		Input:              responsesInput(opts.Prompt),
		Instructions:       po.String("openai", "instructions"),
		Stream:             true,
		Temperature:        opts.Temperature,
		TopP:               opts.TopP,
		MaxOutputTokens:    opts.MaxOutputTokens,
		PreviousResponseID: po.String("openai", "previousResponseId"),
		Conversation:       po.String("openai", "conversation"),
		User:               po.String("openai", "user"),
		PromptCacheKey:     po.String("openai", "promptCacheKey"),
		ServiceTier:        po.String("openai", "serviceTier"),
	}

	if v, ok := po.Get("openai", "store"); ok {
		if b, ok := v.(bool); ok {
			req.Store = &b
		}
	}
	if v, ok := po.Get("openai", "parallelToolCalls"); ok {
		if b, ok := v.(bool); ok {
			req.ParallelToolCalls = &b
		}
	}
	if v, ok := po.Get("openai", "include"); ok {
		req.Include = stringSlice(v)
	}
	if v, ok := po.Get("openai", "metadata"); ok {
		if m, ok := v.(map[string]any); ok {
			req.Metadata = m
		}
	}

	reasoning := map[string]any{}
	if effort := po.String("openai", "reasoningEffort"); effort != "" {
		reasoning["effort"] = effort
	}
	if summary := po.String("openai", "reasoningSummary"); summary != "" {
		reasoning["summary"] = summary
	}
	if len(reasoning) > 0 {
		req.Reasoning = reasoning
	}
	if verbosity := po.String("openai", "textVerbosity"); verbosity != "" {
		req.Text = map[string]any{"verbosity": verbosity}
	}

	for _, tool := range opts.Tools {
		params := json.RawMessage(tool.InputSchema)
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		req.Tools = append(req.Tools, map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  params,
		})
	}

	var warnings []types.Warning
	if len(opts.StopSequences) > 0 {
		warnings = append(warnings, types.Warning{Type: "unsupported-setting", Setting: "stopSequences"})
	}
	return req, warnings
}

// responsesInput converts a prompt to Responses API input items.
func responsesInput(prompt []types.Message) []map[string]any {
	items := make([]map[string]any, 0, len(prompt))
	for _, msg := range prompt {
		switch msg.Role {
		case types.RoleSystem:
			items = append(items, map[string]any{"role": "system", "content": msg.Text()})

		case types.RoleUser:
			if !msg.Structured() {
				items = append(items, map[string]any{
					"role":    "user",
					"content": []map[string]any{{"type": "input_text", "text": msg.Content}},
				})
				continue
			}
			content := make([]map[string]any, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				switch part.Type {
				case types.PartText, types.PartInputText:
					content = append(content, map[string]any{"type": "input_text", "text": part.Text})
				case types.PartImage, types.PartInputImage:
					content = append(content, responsesImage(part))
				case types.PartFile:
					content = append(content, map[string]any{
						"type":      "input_file",
						"filename":  part.Filename,
						"file_data": "data:" + part.MediaType + ";base64," + part.Data,
					})
				}
			}
			items = append(items, map[string]any{"role": "user", "content": content})

		case types.RoleAssistant:
			if !msg.Structured() {
				items = append(items, assistantText(msg.Content))
				continue
			}
			for _, part := range msg.Parts {
				switch part.Type {
				case types.PartText:
					items = append(items, assistantText(part.Text))
				case types.PartToolCall:
					items = append(items, map[string]any{
						"type":      "function_call",
						"call_id":   part.ToolCallID,
						"name":      part.ToolName,
						"arguments": rawToString(part.Input, "{}"),
					})
				}
			}

		case types.RoleTool:
			for _, part := range msg.Parts {
				if part.Type != types.PartToolResult {
					continue
				}
				items = append(items, map[string]any{
					"type":    "function_call_output",
					"call_id": part.ToolCallID,
					"output":  rawToString(part.Output, ""),
				})
			}
		}
	}
	return items
}

func assistantText(text string) map[string]any {
	return map[string]any{
		"role":    "assistant",
		"content": []map[string]any{{"type": "output_text", "text": text}},
	}
}

// responsesImage references an image by URL, inline data or uploaded file id.
func responsesImage(part types.Part) map[string]any {
	ref := part.Image
	if ref == "" {
		ref = part.ImageURL
	}
	if ref == "" && part.FileID != "" {
		return map[string]any{"type": "input_image", "file_id": part.FileID}
	}
	if strings.HasPrefix(ref, "file-") {
		return map[string]any{"type": "input_image", "file_id": ref}
	}
	return map[string]any{"type": "input_image", "image_url": imageURL(part)}
}

func stringSlice(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[strings.ToLower(k)] = h.Get(k)
	}
	return out
}

// responsesEvent is the union of the Responses API stream events this
// transport understands.
type responsesEvent struct {
	Type       string               `json:"type"`
	ItemID     string               `json:"item_id"`
	Delta      string               `json:"delta"`
	Item       *responsesItem       `json:"item"`
	Response   *responsesResponse   `json:"response"`
	Annotation *responsesAnnotation `json:"annotation"`
	Code       string               `json:"code"`
	Message    string               `json:"message"`

	// Set when the decoder wraps a named event as {"event": ..., "data": ...}.
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type responsesItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responsesResponse struct {
	ID                string `json:"id"`
	Model             string `json:"model"`
	CreatedAt         int64  `json:"created_at"`
	ServiceTier       string `json:"service_tier"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Usage *struct {
		InputTokens        int64 `json:"input_tokens"`
		OutputTokens       int64 `json:"output_tokens"`
		TotalTokens        int64 `json:"total_tokens"`
		InputTokensDetails struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"input_tokens_details"`
		OutputTokensDetails struct {
			ReasoningTokens int64 `json:"reasoning_tokens"`
		} `json:"output_tokens_details"`
	} `json:"usage"`
}

type responsesAnnotation struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// ResponsesError is an error reported by the Responses API inside the stream.
type ResponsesError struct {
	Code    string
	Message string
}

func (e *ResponsesError) Error() string {
	if e.Code == "" {
		return "responses: " + e.Message
	}
	return fmt.Sprintf("responses: %s: %s", e.Code, e.Message)
}

// translateResponsesStream converts Responses API events into stream events.
// It stops early when the reader side of w is closed.
func translateResponsesStream(events *ssestream.Stream[responsesEvent], warnings []types.Warning, w *schema.StreamWriter[stream.Event]) {
	send := func(ev stream.Event) bool {
		return !w.Send(ev, nil)
	}
	if warnings == nil {
		warnings = []types.Warning{}
	}
	if !send(stream.StreamStart{Warnings: warnings}) {
		return
	}

	hasToolCalls := false
	for events.Next() {
		ev := events.Current()
		if ev.Type == "" && len(ev.Data) > 0 {
			name, data := ev.Event, ev.Data
			ev = responsesEvent{}
			if err := json.Unmarshal(data, &ev); err != nil {
				w.Send(nil, err)
				return
			}
			if ev.Type == "" {
				ev.Type = name
			}
		}

		var out []stream.Event
		switch ev.Type {
		case "response.created":
			if r := ev.Response; r != nil {
				meta := types.ResponseMetadata{ID: r.ID, ModelID: r.Model}
				if r.CreatedAt > 0 {
					ts := time.Unix(r.CreatedAt, 0).UTC()
					meta.Timestamp = &ts
				}
				out = append(out, stream.ResponseMetadata{ResponseMetadata: meta})
			}

		case "response.output_item.added":
			if item := ev.Item; item != nil {
				switch item.Type {
				case "message":
					out = append(out, stream.TextStart{ID: item.ID})
				case "reasoning":
					out = append(out, stream.ReasoningStart{ID: item.ID})
				}
			}

		case "response.output_text.delta":
			out = append(out, stream.TextDelta{ID: ev.ItemID, Delta: ev.Delta})

		case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
			out = append(out, stream.ReasoningDelta{ID: ev.ItemID, Delta: ev.Delta})

		case "response.output_text.annotation.added":
			if a := ev.Annotation; a != nil {
				out = append(out, annotationSource(a))
			}

		case "response.output_item.done":
			if item := ev.Item; item != nil {
				switch item.Type {
				case "message":
					out = append(out, stream.TextEnd{ID: item.ID})
				case "reasoning":
					out = append(out, stream.ReasoningEnd{ID: item.ID})
				case "function_call":
					hasToolCalls = true
					out = append(out, stream.ToolCall{ToolCallBlock: types.ToolCallBlock{
						ToolCallID: item.CallID,
						ToolName:   item.Name,
						Input:      item.Arguments,
						ProviderMetadata: types.ProviderMetadata{
							"openai": {"itemId": item.ID},
						},
					}})
				}
			}

		case "response.completed", "response.incomplete":
			out = append(out, responsesFinish(ev.Response, hasToolCalls))

		case "response.failed":
			err := &ResponsesError{Message: "response failed"}
			if r := ev.Response; r != nil && r.Error != nil {
				err = &ResponsesError{Code: r.Error.Code, Message: r.Error.Message}
			}
			out = append(out, stream.Error{Err: err})

		case "error":
			out = append(out, stream.Error{Err: &ResponsesError{Code: ev.Code, Message: ev.Message}})
		}

		for _, e := range out {
			if !send(e) {
				return
			}
		}
	}

	if err := events.Err(); err != nil {
		w.Send(nil, err)
	}
}

func annotationSource(a *responsesAnnotation) stream.Event {
	if a.Type == "file_citation" {
		return stream.Source{SourceBlock: types.SourceBlock{
			SourceType: "document",
			ID:         a.FileID,
			Title:      a.Filename,
			Filename:   a.Filename,
		}}
	}
	return stream.Source{SourceBlock: types.SourceBlock{
		SourceType: "url",
		ID:         a.URL,
		URL:        a.URL,
		Title:      a.Title,
	}}
}

func responsesFinish(r *responsesResponse, hasToolCalls bool) stream.Finish {
	finish := stream.Finish{FinishReason: types.FinishStop}
	if hasToolCalls {
		finish.FinishReason = types.FinishToolCalls
	}
	if r == nil {
		return finish
	}

	if d := r.IncompleteDetails; d != nil {
		switch d.Reason {
		case "max_output_tokens":
			finish.FinishReason = types.FinishLength
		case "content_filter":
			finish.FinishReason = types.FinishContentFilter
		default:
			finish.FinishReason = types.FinishUnknown
		}
	}

	if u := r.Usage; u != nil {
		finish.Usage = &types.Usage{
			InputTokens:       types.Int64(u.InputTokens),
			OutputTokens:      types.Int64(u.OutputTokens),
			TotalTokens:       types.Int64(u.TotalTokens),
			ReasoningTokens:   types.Int64(u.OutputTokensDetails.ReasoningTokens),
			CachedInputTokens: types.Int64(u.InputTokensDetails.CachedTokens),
		}
	}

	meta := map[string]any{"responseId": r.ID}
	if r.ServiceTier != "" {
		meta["serviceTier"] = r.ServiceTier
	}
	finish.ProviderMetadata = types.ProviderMetadata{"openai": meta}
	return finish
}
