package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/instructions"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// fakeModel records the options it receives and replays fixed events.
type fakeModel struct {
	kind     string
	modelID  string
	events   []stream.Event
	received []*types.CallOptions
}

func (m *fakeModel) Generate(ctx context.Context, opts *types.CallOptions) (*types.Result, error) {
	m.received = append(m.received, opts)
	return &types.Result{FinishReason: "direct"}, nil
}

func (m *fakeModel) Stream(ctx context.Context, opts *types.CallOptions) (*stream.Stream, error) {
	m.received = append(m.received, opts)
	return stream.FromEvents(m.events...), nil
}

// fakeTransport records which wire API was requested.
type fakeTransport struct {
	calls  []string
	model  *fakeModel
	events []stream.Event
}

func (t *fakeTransport) Chat(modelID string) (LanguageModel, error) {
	t.calls = append(t.calls, "chat:"+modelID)
	t.model = &fakeModel{kind: "chat", modelID: modelID, events: t.events}
	return t.model, nil
}

func (t *fakeTransport) Responses(modelID string) (LanguageModel, error) {
	t.calls = append(t.calls, "responses:"+modelID)
	t.model = &fakeModel{kind: "responses", modelID: modelID, events: t.events}
	return t.model, nil
}

const testHome = "/codex"

func newOptions(t *testing.T, files map[string]string, transport *fakeTransport) Options {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
	return Options{
		Home: testHome,
		Env:  config.MapEnv{},
		Fs:   fs,
		NewTransport: func(*config.Profile) (Transport, error) {
			return transport, nil
		},
	}
}

func TestSelectModel_CallsExactlyOneMethod(t *testing.T) {
	for _, wire := range []config.WireAPI{config.WireAPIChat, config.WireAPIResponses} {
		for _, id := range []string{"gpt-5.2-codex", "gpt-4o", ""} {
			transport := &fakeTransport{}

			model, err := SelectModel(transport, wire, id)
			require.NoError(t, err)

			require.Equal(t, []string{string(wire) + ":" + id}, transport.calls)
			assert.Equal(t, string(wire), model.(*fakeModel).kind)
		}
	}
}

func TestCreateLanguageModel_ChatProfileIsNotWrapped(t *testing.T) {
	transport := &fakeTransport{}
	opts := newOptions(t, map[string]string{
		"/codex/config.toml": `
model = "gpt-4o"
model_provider = "local"
[model_providers.local]
base_url = "http://localhost:1234/v1"
wire_api = "chat"
`,
		"/codex/AGENTS.md": "Use these rules.",
	}, transport)

	model, err := New(opts).LanguageModel(context.Background(), "ignored")
	require.NoError(t, err)

	assert.Equal(t, []string{"chat:gpt-4o"}, transport.calls)
	fake, ok := model.(*fakeModel)
	require.True(t, ok, "chat handles are returned as is")

	_, err = model.Generate(context.Background(), &types.CallOptions{Prompt: []types.Message{types.TextMessage(types.RoleUser, "hi")}})
	require.NoError(t, err)
	require.Len(t, fake.received, 1)
	assert.Len(t, fake.received[0].Prompt, 1, "no instruction injection on chat")
	assert.Nil(t, fake.received[0].ProviderOptions)
}

func TestCreateLanguageModel_ResponsesAreWrapped(t *testing.T) {
	transport := &fakeTransport{events: []stream.Event{
		stream.StreamStart{},
		stream.TextStart{ID: "a"},
		stream.TextDelta{ID: "a", Delta: "Hello"},
		stream.TextEnd{ID: "a"},
		stream.Finish{FinishReason: "stop", Usage: &types.Usage{InputTokens: types.Int64(1_000_000), OutputTokens: types.Int64(500_000)}},
	}}
	opts := newOptions(t, nil, transport)
	opts.Instructions = "Follow X."
	opts.Pricing = &types.Pricing{InputPerMToken: 2, OutputPerMToken: 10}

	model, err := New(opts).LanguageModel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"responses:gpt-5-codex"}, transport.calls)
	require.IsType(t, &ResponsesModel{}, model)

	maxTokens := 100
	result, err := model.Generate(context.Background(), &types.CallOptions{
		MaxOutputTokens: &maxTokens,
		ProviderOptions: types.ProviderOptions{"openai": {"previousResponseId": "resp_0"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", result.Text())
	assert.Equal(t, "stop", result.FinishReason)
	assert.InDelta(t, 7.0, result.ProviderMetadata[DefaultName]["cost"], 1e-9)

	require.Len(t, transport.model.received, 1, "generate is served from the inner stream")
	sent := transport.model.received[0]
	assert.Equal(t, "Follow X.", sent.ProviderOptions.String("openai", "instructions"))
	assert.Equal(t, true, sent.ProviderOptions["openai"]["store"])
	assert.NotContains(t, sent.ProviderOptions["openai"], "previousResponseId")
	assert.Nil(t, sent.MaxOutputTokens)
}

func TestCreateLanguageModel_ForcedWireAPI(t *testing.T) {
	transport := &fakeTransport{}
	p := New(newOptions(t, nil, transport))

	_, err := p.Chat(context.Background(), "")
	require.NoError(t, err)
	_, err = p.Responses(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"chat:gpt-5-codex", "responses:gpt-5-codex"}, transport.calls)
}

func TestCreateLanguageModel_RequestedModel(t *testing.T) {
	transport := &fakeTransport{}
	opts := newOptions(t, nil, transport)
	off := false
	opts.UseCodexConfigModel = &off

	_, err := New(opts).LanguageModel(context.Background(), "o3")
	require.NoError(t, err)
	assert.Equal(t, []string{"responses:o3"}, transport.calls)
}

func TestCreateLanguageModel_AgentsInjection(t *testing.T) {
	transport := &fakeTransport{events: []stream.Event{stream.Finish{FinishReason: "stop"}}}
	opts := newOptions(t, map[string]string{"/codex/AGENTS.md": "Use these rules."}, transport)

	model, err := New(opts).LanguageModel(context.Background(), "gpt-5.2-codex")
	require.NoError(t, err)

	s, err := model.Stream(context.Background(), &types.CallOptions{Prompt: []types.Message{types.TextMessage(types.RoleUser, "hi")}})
	require.NoError(t, err)
	s.Close()

	sent := transport.model.received[0]
	require.Len(t, sent.Prompt, 2)
	assert.Contains(t, sent.Prompt[0].Text(), "<user_instructions>")
	assert.Contains(t, sent.Prompt[0].Text(), "Use these rules.")
	assert.True(t, strings.HasPrefix(sent.ProviderOptions.String("openai", "instructions"), "You are Codex, based on GPT-5."))
}

func TestCreateLanguageModel_Errors(t *testing.T) {
	t.Run("no model", func(t *testing.T) {
		transport := &fakeTransport{}
		opts := newOptions(t, map[string]string{"/codex/config.toml": `model = ""`}, transport)

		_, err := New(opts).LanguageModel(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoModel)
		assert.Empty(t, transport.calls)
	})

	t.Run("no base url", func(t *testing.T) {
		transport := &fakeTransport{}
		opts := newOptions(t, map[string]string{"/codex/config.toml": `model_provider = "custom"`}, transport)

		_, err := New(opts).LanguageModel(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoBaseURL)
		assert.Empty(t, transport.calls)
	})

	t.Run("bad wire api", func(t *testing.T) {
		transport := &fakeTransport{}
		opts := newOptions(t, map[string]string{"/codex/config.toml": "[model_providers.openai]\nwire_api = \"grpc\"\n"}, transport)

		_, err := New(opts).LanguageModel(context.Background(), "")
		var cerr *config.ConfigError
		assert.True(t, errors.As(err, &cerr))
		assert.Empty(t, transport.calls)
	})

	t.Run("transport failure", func(t *testing.T) {
		boom := errors.New("boom")
		opts := newOptions(t, nil, nil)
		opts.NewTransport = func(*config.Profile) (Transport, error) { return nil, boom }

		_, err := New(opts).LanguageModel(context.Background(), "")
		assert.ErrorIs(t, err, boom)
	})
}

func TestProvider_UnsupportedModels(t *testing.T) {
	p := New(Options{})

	_, err := p.EmbeddingModel("text-embedding-3-small")
	var unsupported *UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "codex-config does not support embeddings", err.Error())

	_, err = New(Options{Name: "my-codex"}).ImageModel("gpt-image-1")
	assert.EqualError(t, err, "my-codex does not support images")
}

func TestProvider_Instructions(t *testing.T) {
	opts := newOptions(t, map[string]string{
		"/codex/config.toml": `model = "gpt-4o"`,
		"/codex/AGENTS.md":   "Use these rules.",
	}, &fakeTransport{})

	resolved, err := New(opts).Instructions("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved.Base, instructions.DefaultInstructions))
	assert.Contains(t, resolved.Base, "apply_patch")
	assert.Equal(t, "Use these rules.", resolved.User)

	off := false
	opts.UseCodexConfigModel = &off
	resolved, err = New(opts).Instructions("gpt-5-codex")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved.Base, "You are Codex, based on GPT-5."))
}

func TestResponsesModel_StreamErrorsPropagate(t *testing.T) {
	boom := errors.New("stream failed")
	inner := &fakeModel{events: []stream.Event{stream.TextStart{ID: "a"}, stream.Error{Err: boom}}}
	resolver := instructions.NewResolver(afero.NewMemMapFs())
	m := NewResponsesModel(inner, resolver, instructions.Context{ModelID: "gpt-5-codex", Instructions: "x"}, stream.CollectOptions{})

	_, err := m.Generate(context.Background(), &types.CallOptions{})
	assert.Same(t, boom, err)
}
