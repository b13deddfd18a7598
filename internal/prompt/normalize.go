package prompt

import (
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/instructions"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// Normalize returns a copy of opts fixed up for a stateless responses call:
//
//   - itemId is removed from the openai options of every message and part
//   - input_text parts become text parts, input_image parts become image parts
//   - the output token limit is dropped
//   - store is forced to true
//   - previousResponseId and conversation are removed
func Normalize(opts *types.CallOptions) *types.CallOptions {
	out := opts.Clone()

	for i := range out.Prompt {
		out.Prompt[i] = normalizeMessage(out.Prompt[i])
	}

	out.MaxOutputTokens = nil

	if out.ProviderOptions == nil {
		out.ProviderOptions = types.ProviderOptions{}
	}
	out.ProviderOptions.Set(OpenAIScope, StoreKey, true)
	out.ProviderOptions.Delete(OpenAIScope, PreviousResponseIDKey)
	out.ProviderOptions.Delete(OpenAIScope, ConversationKey)
	return out
}

// ForResponses runs instruction injection followed by normalization.
func ForResponses(opts *types.CallOptions, r *instructions.Resolver, ic instructions.Context) *types.CallOptions {
	return Normalize(WithInstructions(opts, r, ic))
}

// normalizeMessage expects a message the caller owns.
func normalizeMessage(m types.Message) types.Message {
	m.ProviderOptions.Delete(OpenAIScope, ItemIDKey)
	if len(m.ProviderOptions) == 0 {
		m.ProviderOptions = nil
	}
	for i := range m.Parts {
		m.Parts[i] = normalizePart(m.Parts[i])
	}
	return m
}

func normalizePart(p types.Part) types.Part {
	p.ProviderOptions.Delete(OpenAIScope, ItemIDKey)
	if len(p.ProviderOptions) == 0 {
		p.ProviderOptions = nil
	}

	switch p.Type {
	case types.PartInputText:
		p.Type = types.PartText
	case types.PartInputImage:
		p.Type = types.PartImage
		if p.ImageURL != "" {
			p.Image = p.ImageURL
		} else {
			p.Image = p.FileID
		}
		p.ImageURL = ""
		p.FileID = ""
	}
	return p
}
