package provider

import (
	"context"
	"maps"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
)

// OpenAITransport serves both wire APIs of an OpenAI compatible endpoint:
// chat through the Eino OpenAI chat model and responses through openai-go.
// Profile headers and query parameters are applied to every request.
type OpenAITransport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	responses  openai.Client
}

// TransportOption customizes an OpenAITransport.
type TransportOption func(*transportOptions)

type transportOptions struct {
	base http.RoundTripper
}

// WithRoundTripper sets the transport used below the header layer.
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(o *transportOptions) { o.base = rt }
}

// NewOpenAITransport creates a transport for profile.
func NewOpenAITransport(profile *config.Profile, opts ...TransportOption) (*OpenAITransport, error) {
	o := transportOptions{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			base:    o.base,
			headers: maps.Clone(profile.Headers),
			query:   maps.Clone(profile.QueryParams),
		},
	}

	clientOpts := []option.RequestOption{
		option.WithBaseURL(profile.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if profile.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(profile.APIKey))
	} else {
		// openai-go picks OPENAI_API_KEY up from the environment by default.
		clientOpts = append(clientOpts, option.WithHeaderDel("Authorization"))
	}

	return &OpenAITransport{
		baseURL:    profile.BaseURL,
		apiKey:     profile.APIKey,
		httpClient: httpClient,
		responses:  openai.NewClient(clientOpts...),
	}, nil
}

// Chat returns a chat completions handle for modelID.
func (t *OpenAITransport) Chat(modelID string) (LanguageModel, error) {
	return newChatModel(context.Background(), t, modelID)
}

// Responses returns a responses handle for modelID.
func (t *OpenAITransport) Responses(modelID string) (LanguageModel, error) {
	return &responsesHandle{client: t.responses, modelID: modelID}, nil
}

type callHeadersKey struct{}

// withCallHeaders attaches per-call headers that headerTransport adds to the
// outgoing request.
func withCallHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return context.WithValue(ctx, callHeadersKey{}, headers)
}

// headerTransport sets profile headers, per-call headers and query
// parameters on each request. Per-call headers win over profile headers.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
	query   map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if callHeaders, ok := req.Context().Value(callHeadersKey{}).(map[string]string); ok {
		for k, v := range callHeaders {
			req.Header.Set(k, v)
		}
	}
	if len(t.query) > 0 {
		q := req.URL.Query()
		for k, v := range t.query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
