package provider

import (
	"context"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/instructions"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/prompt"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// ResponsesModel wraps a responses handle so that every call carries exactly
// one resolved instruction and is normalized for stateless use. Generate is
// served from the inner stream through the collector.
type ResponsesModel struct {
	inner    LanguageModel
	resolver *instructions.Resolver
	context  instructions.Context
	collect  stream.CollectOptions
}

// NewResponsesModel wraps inner.
func NewResponsesModel(inner LanguageModel, resolver *instructions.Resolver, ic instructions.Context, collect stream.CollectOptions) *ResponsesModel {
	if resolver == nil {
		resolver = instructions.NewResolver(nil)
	}
	return &ResponsesModel{
		inner:    inner,
		resolver: resolver,
		context:  ic,
		collect:  collect,
	}
}

// Prepare returns the options that would be sent for opts.
func (m *ResponsesModel) Prepare(opts *types.CallOptions) *types.CallOptions {
	return prompt.ForResponses(opts, m.resolver, m.context)
}

// Generate streams the prepared call and collects it into a result.
func (m *ResponsesModel) Generate(ctx context.Context, opts *types.CallOptions) (*types.Result, error) {
	s, err := m.Stream(ctx, opts)
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx, s, m.collect)
}

// Stream sends the prepared call to the inner handle.
func (m *ResponsesModel) Stream(ctx context.Context, opts *types.CallOptions) (*stream.Stream, error) {
	return m.inner.Stream(ctx, m.Prepare(opts))
}
