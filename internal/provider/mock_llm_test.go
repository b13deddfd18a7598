package provider_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// MockRequest records an incoming request for verification.
type MockRequest struct {
	Path    string
	Query   url.Values
	Body    map[string]any
	Headers http.Header
}

// MockLLMServer mimics the OpenAI chat completions and responses endpoints
// with deterministic output.
type MockLLMServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []MockRequest

	// ChatContent is streamed word by word by the chat endpoint.
	ChatContent []string
	// ResponsesEvents are written as server-sent events by the responses endpoint.
	ResponsesEvents []map[string]any
	// Status, when set, makes every endpoint fail with this status code.
	Status int
}

// NewMockLLMServer starts a mock server.
func NewMockLLMServer() *MockLLMServer {
	m := &MockLLMServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/v1/responses", m.handleResponses)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the OpenAI style base URL of the server.
func (m *MockLLMServer) URL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockLLMServer) Close() {
	m.server.Close()
}

// Requests returns all recorded requests.
func (m *MockLLMServer) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

func (m *MockLLMServer) record(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return nil, false
	}

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Body:    req,
		Headers: r.Header.Clone(),
	})
	m.mu.Unlock()

	if m.Status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.Status)
		fmt.Fprintf(w, `{"error":{"message":"mock failure","type":"invalid_request_error","code":"mock_%d"}}`, m.Status)
		return nil, false
	}
	return req, true
}

func (m *MockLLMServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, ok := m.record(w, r)
	if !ok {
		return
	}

	if stream, _ := req["stream"].(bool); !stream {
		content := ""
		for _, word := range m.ChatContent {
			content += word
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   req["model"],
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":     100,
				"completion_tokens": 50,
				"total_tokens":      150,
			},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	writeChunk := func(delta map[string]any, finishReason any) {
		chunk := map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"created": 1700000000,
			"model":   req["model"],
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	writeChunk(map[string]any{"role": "assistant"}, nil)
	for _, word := range m.ChatContent {
		writeChunk(map[string]any{"content": word}, nil)
	}
	writeChunk(map[string]any{}, "stop")
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (m *MockLLMServer) handleResponses(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.record(w, r); !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("X-Request-Id", "req_mock")
	flusher := w.(http.Flusher)

	for _, ev := range m.ResponsesEvents {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev["type"], data)
		flusher.Flush()
	}
}

// responsesScript is a complete responses stream with reasoning, text and a
// tool call.
func responsesScript() []map[string]any {
	return []map[string]any{
		{"type": "response.created", "response": map[string]any{"id": "resp_1", "model": "gpt-5-codex", "created_at": 1700000000}},
		{"type": "response.output_item.added", "output_index": 0, "item": map[string]any{"type": "reasoning", "id": "rs_1"}},
		{"type": "response.reasoning_summary_text.delta", "item_id": "rs_1", "delta": "Thinking"},
		{"type": "response.output_item.done", "output_index": 0, "item": map[string]any{"type": "reasoning", "id": "rs_1"}},
		{"type": "response.output_item.added", "output_index": 1, "item": map[string]any{"type": "message", "id": "msg_1"}},
		{"type": "response.output_text.delta", "item_id": "msg_1", "delta": "Hel"},
		{"type": "response.output_text.delta", "item_id": "msg_1", "delta": "lo"},
		{"type": "response.output_item.done", "output_index": 1, "item": map[string]any{"type": "message", "id": "msg_1"}},
		{"type": "response.output_item.added", "output_index": 2, "item": map[string]any{"type": "function_call", "id": "fc_1", "call_id": "call_1", "name": "shell"}},
		{"type": "response.function_call_arguments.delta", "item_id": "fc_1", "delta": `{"cmd":`},
		{"type": "response.output_item.done", "output_index": 2, "item": map[string]any{
			"type": "function_call", "id": "fc_1", "call_id": "call_1", "name": "shell", "arguments": `{"cmd":"ls"}`,
		}},
		{"type": "response.completed", "response": map[string]any{
			"id":    "resp_1",
			"model": "gpt-5-codex",
			"usage": map[string]any{
				"input_tokens":          1_000_000,
				"output_tokens":         500_000,
				"total_tokens":          1_500_000,
				"input_tokens_details":  map[string]any{"cached_tokens": 10},
				"output_tokens_details": map[string]any{"reasoning_tokens": 20},
			},
		}},
	}
}
