// Package prompt rewrites call options before they reach a responses transport.
package prompt

import (
	"strings"

	"github.com/samber/lo"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/instructions"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// Provider option keys in the "openai" scope.
const (
	OpenAIScope           = "openai"
	InstructionsKey       = "instructions"
	ItemIDKey             = "itemId"
	StoreKey              = "store"
	PreviousResponseIDKey = "previousResponseId"
	ConversationKey       = "conversation"
)

// Delimiters wrapped around injected user instructions.
const (
	UserInstructionsOpen  = "<user_instructions>"
	UserInstructionsClose = "</user_instructions>"
)

// WithInstructions attaches the resolved instructions to opts. When opts
// already carries a non-empty instructions option it is returned untouched
// and no instruction source is read. Otherwise a modified copy is returned;
// opts itself is never changed. System messages are removed from the copy
// and their text competes for the instruction slot after inline
// instructions, so the call carries a single instruction.
func WithInstructions(opts *types.CallOptions, r *instructions.Resolver, ic instructions.Context) *types.CallOptions {
	if opts != nil && opts.ProviderOptions.String(OpenAIScope, InstructionsKey) != "" {
		return opts
	}

	if ic.Tools == nil {
		ic.Tools = opts.ToolNames()
	}
	out := opts.Clone()
	if ic.System == "" {
		ic.System = SystemText(out.Prompt)
	}
	if lo.SomeBy(out.Prompt, isSystem) {
		out.Prompt = lo.Reject(out.Prompt, func(m types.Message, _ int) bool { return isSystem(m) })
	}
	resolved := r.Resolve(ic)

	if out.ProviderOptions == nil {
		out.ProviderOptions = types.ProviderOptions{}
	}
	out.ProviderOptions.Set(OpenAIScope, InstructionsKey, resolved.Base)

	if resolved.User != "" && !HasUserInstructions(out.Prompt) {
		out.Prompt = append([]types.Message{UserInstructionsMessage(resolved.User)}, out.Prompt...)
	}
	return out
}

// SystemText joins the non-blank text of the system messages in prompt with
// newlines.
func SystemText(prompt []types.Message) string {
	texts := lo.FilterMap(prompt, func(m types.Message, _ int) (string, bool) {
		if m.Role != types.RoleSystem {
			return "", false
		}
		text := m.Text()
		return text, strings.TrimSpace(text) != ""
	})
	return strings.Join(texts, "\n")
}

func isSystem(m types.Message) bool { return m.Role == types.RoleSystem }

// UserInstructionsMessage wraps text in the user instruction delimiters.
func UserInstructionsMessage(text string) types.Message {
	return types.Message{
		Role: types.RoleUser,
		Parts: []types.Part{{
			Type: types.PartText,
			Text: UserInstructionsOpen + "\n\n" + text + "\n\n" + UserInstructionsClose,
		}},
	}
}

// HasUserInstructions reports whether a user message in prompt already
// carries a wrapped user instruction block.
func HasUserInstructions(prompt []types.Message) bool {
	return lo.SomeBy(prompt, func(m types.Message) bool {
		if m.Role != types.RoleUser {
			return false
		}
		text := m.Text()
		return strings.Contains(text, UserInstructionsOpen) && strings.Contains(text, UserInstructionsClose)
	})
}
