// Package provider builds language model handles from a codex settings home.
//
// A Provider resolves the connection profile on every model request, picks the
// wire API the profile declares and returns a handle backed by an OpenAI
// compatible endpoint.
//
// # Wire APIs
//
// Two transports are supported:
//
//   - chat: Chat Completions through the Eino OpenAI model. Handles are
//     returned as is; no instructions are added.
//   - responses: the Responses API, decoded from server-sent events. Handles
//     are wrapped in a ResponsesModel that resolves instructions, injects the
//     user's AGENTS.md and normalizes call options before each call.
//
// # Usage
//
//	p := provider.New(provider.Options{})
//	model, err := p.LanguageModel(ctx, "")
//	if err != nil {
//		return err
//	}
//	result, err := model.Generate(ctx, &types.CallOptions{
//		Prompt: []types.Message{types.TextMessage(types.RoleUser, "hello")},
//	})
//
// Profile headers, per-call headers and query parameters are applied by the
// HTTP transport shared by both wire APIs. Embedding and image models are not
// offered; asking for one returns an *UnsupportedError.
package provider
