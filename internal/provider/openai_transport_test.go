package provider_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"
	"github.com/spf13/afero"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

func TestProviderSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Provider Suite")
}

func settings(baseURL, wireAPI string) string {
	return `
model = "gpt-5-codex"
model_provider = "mock"

[model_providers.mock]
base_url = "` + baseURL + `"
env_key = "MOCK_KEY"
wire_api = "` + wireAPI + `"
query_params = { api-version = "2025-04-01" }
http_headers = { "X-Team" = "platform" }
env_http_headers = { "X-Trace" = "TRACE" }
`
}

var _ = Describe("OpenAITransport", func() {
	var (
		ctx  context.Context
		mock *MockLLMServer
		fs   afero.Fs
		p    *provider.Provider
	)

	newProvider := func(wireAPI string) *provider.Provider {
		Expect(afero.WriteFile(fs, "/codex/config.toml", []byte(settings(mock.URL(), wireAPI)), 0644)).To(Succeed())
		return provider.New(provider.Options{
			Home:    "/codex",
			Env:     config.MapEnv{"MOCK_KEY": "sk-test", "TRACE": "tr-1"},
			Fs:      fs,
			Pricing: &types.Pricing{InputPerMToken: 2, OutputPerMToken: 10},
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		mock = NewMockLLMServer()
		fs = afero.NewMemMapFs()
		Expect(afero.WriteFile(fs, "/codex/AGENTS.md", []byte("Use these rules."), 0644)).To(Succeed())
	})

	AfterEach(func() {
		mock.Close()
	})

	Describe("responses wire API", func() {
		BeforeEach(func() {
			mock.ResponsesEvents = responsesScript()
			p = newProvider("responses")
		})

		It("should send one instruction and a normalized request", func() {
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			maxTokens := 50
			_, err = model.Generate(ctx, &types.CallOptions{
				Prompt:          []types.Message{types.TextMessage(types.RoleUser, "hi")},
				MaxOutputTokens: &maxTokens,
				ProviderOptions: types.ProviderOptions{"openai": {"previousResponseId": "resp_0"}},
				Headers:         map[string]string{"X-Call": "1"},
			})
			Expect(err).NotTo(HaveOccurred())

			requests := mock.Requests()
			Expect(requests).To(HaveLen(1))
			req := requests[0]

			Expect(req.Path).To(Equal("/v1/responses"))
			Expect(req.Query.Get("api-version")).To(Equal("2025-04-01"))
			Expect(req.Headers.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(req.Headers.Get("X-Team")).To(Equal("platform"))
			Expect(req.Headers.Get("X-Trace")).To(Equal("tr-1"))
			Expect(req.Headers.Get("X-Call")).To(Equal("1"))

			Expect(req.Body["model"]).To(Equal("gpt-5-codex"))
			Expect(req.Body["stream"]).To(BeTrue())
			Expect(req.Body["store"]).To(BeTrue())
			Expect(req.Body["instructions"]).To(HavePrefix("You are Codex, based on GPT-5."))
			Expect(req.Body).NotTo(HaveKey("max_output_tokens"))
			Expect(req.Body).NotTo(HaveKey("previous_response_id"))

			input := req.Body["input"].([]any)
			Expect(input).To(HaveLen(2))
			first := input[0].(map[string]any)
			Expect(first["role"]).To(Equal("user"))
			text := first["content"].([]any)[0].(map[string]any)["text"].(string)
			Expect(text).To(ContainSubstring("<user_instructions>"))
			Expect(text).To(ContainSubstring("Use these rules."))
		})

		It("should send system messages as the instruction only", func() {
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = model.Generate(ctx, &types.CallOptions{
				Prompt: []types.Message{
					types.TextMessage(types.RoleSystem, "Be terse."),
					types.TextMessage(types.RoleUser, "hi"),
					types.TextMessage(types.RoleSystem, "Answer in English."),
				},
			})
			Expect(err).NotTo(HaveOccurred())

			req := mock.Requests()[0]
			Expect(req.Body["instructions"]).To(Equal("Be terse.\nAnswer in English."))

			input := req.Body["input"].([]any)
			Expect(input).To(HaveLen(2))
			for _, item := range input {
				Expect(item.(map[string]any)["role"]).To(Equal("user"))
			}
		})

		It("should collect the event stream into a result", func() {
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			result, err := model.Generate(ctx, &types.CallOptions{
				Prompt:        []types.Message{types.TextMessage(types.RoleUser, "list files")},
				StopSequences: []string{"END"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Content).To(HaveLen(3))
			Expect(result.Content[0]).To(Equal(types.ReasoningBlock{Text: "Thinking"}))
			Expect(result.Content[1]).To(Equal(types.TextBlock{Text: "Hello"}))
			call := result.Content[2].(types.ToolCallBlock)
			Expect(call.ToolCallID).To(Equal("call_1"))
			Expect(call.ToolName).To(Equal("shell"))
			Expect(call.Input).To(Equal(`{"cmd":"ls"}`))

			Expect(result.FinishReason).To(Equal(types.FinishToolCalls))
			Expect(*result.Usage.InputTokens).To(BeEquivalentTo(1_000_000))
			Expect(*result.Usage.ReasoningTokens).To(BeEquivalentTo(20))
			Expect(*result.Usage.CachedInputTokens).To(BeEquivalentTo(10))
			Expect(result.ProviderMetadata["codex-config"]["cost"]).To(BeNumerically("~", 7.0, 1e-9))
			Expect(result.ProviderMetadata["openai"]["responseId"]).To(Equal("resp_1"))

			Expect(result.Warnings).To(ConsistOf(types.Warning{Type: "unsupported-setting", Setting: "stopSequences"}))
			Expect(result.Response.ID).To(Equal("resp_1"))
			Expect(result.Response.ModelID).To(Equal("gpt-5-codex"))
			Expect(result.Response.Headers).To(HaveKeyWithValue("x-request-id", "req_mock"))
		})

		It("should stream events in arrival order", func() {
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			s, err := model.Stream(ctx, &types.CallOptions{})
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			var kinds []string
			for {
				ev, err := s.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				Expect(err).NotTo(HaveOccurred())
				kinds = append(kinds, ev.EventType())
			}

			Expect(kinds).To(Equal([]string{
				stream.TypeStreamStart,
				stream.TypeResponseMetadata,
				stream.TypeReasoningStart,
				stream.TypeReasoningDelta,
				stream.TypeReasoningEnd,
				stream.TypeTextStart,
				stream.TypeTextDelta,
				stream.TypeTextDelta,
				stream.TypeTextEnd,
				stream.TypeToolCall,
				stream.TypeFinish,
			}))
		})

		It("should return HTTP failures unchanged", func() {
			mock.Status = 401
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = model.Generate(ctx, &types.CallOptions{})
			var apiErr *openai.Error
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(401))
		})

		It("should abort on an error event", func() {
			mock.ResponsesEvents = []map[string]any{
				responsesScript()[0],
				{"type": "error", "code": "rate_limit_exceeded", "message": "slow down"},
				responsesScript()[len(responsesScript())-1],
			}
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			result, err := model.Generate(ctx, &types.CallOptions{})
			Expect(result).To(BeNil())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("slow down"))
		})
	})

	Describe("chat wire API", func() {
		BeforeEach(func() {
			mock.ChatContent = []string{"Hello", " world"}
			p = newProvider("chat")
		})

		It("should stream chat chunks without instruction injection", func() {
			model, err := p.LanguageModel(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			_, wrapped := model.(*provider.ResponsesModel)
			Expect(wrapped).To(BeFalse())

			s, err := model.Stream(ctx, &types.CallOptions{
				Prompt: []types.Message{types.TextMessage(types.RoleUser, "hi")},
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := stream.Collect(ctx, s, stream.CollectOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text()).To(Equal("Hello world"))
			Expect(result.FinishReason).To(Equal(types.FinishStop))

			requests := mock.Requests()
			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.Path).To(Equal("/v1/chat/completions"))
			Expect(req.Query.Get("api-version")).To(Equal("2025-04-01"))
			Expect(req.Headers.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(req.Headers.Get("X-Team")).To(Equal("platform"))
			Expect(req.Body["model"]).To(Equal("gpt-5-codex"))
			Expect(req.Body["messages"]).To(HaveLen(1))
			Expect(req.Body).NotTo(HaveKey("instructions"))
		})

		It("should generate without streaming", func() {
			model, err := p.Chat(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			result, err := model.Generate(ctx, &types.CallOptions{
				Prompt: []types.Message{
					types.TextMessage(types.RoleSystem, "Be brief."),
					types.TextMessage(types.RoleUser, "hi"),
				},
				Tools: []types.Tool{{
					Name:        "shell",
					Description: "Run a command",
					InputSchema: []byte(`{"type":"object","properties":{"cmd":{"type":"string"}},"required":["cmd"]}`),
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text()).To(Equal("Hello world"))
			Expect(result.FinishReason).To(Equal(types.FinishStop))
			Expect(*result.Usage.InputTokens).To(BeEquivalentTo(100))

			req := mock.Requests()[0]
			Expect(req.Body["tools"]).To(HaveLen(1))
			messages := req.Body["messages"].([]any)
			Expect(messages[0].(map[string]any)["role"]).To(Equal("system"))
			Expect(strings.TrimSpace(messages[0].(map[string]any)["content"].(string))).To(Equal("Be brief."))
		})
	})
})
