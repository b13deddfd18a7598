package instructions

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const home = "/codex"

func newResolver(t *testing.T, files map[string]string) *Resolver {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
	return NewResolver(fs)
}

func boolPtr(v bool) *bool { return &v }

func TestBase_FileWinsOverInline(t *testing.T) {
	r := newResolver(t, map[string]string{"/codex/base.md": "  Base instructions from file.\n"})

	got := r.Base(Context{Home: home, ModelID: "gpt-5.2-codex", InstructionsFile: "base.md", Instructions: "Inline."})
	assert.Equal(t, "Base instructions from file.", got)

	got = r.Base(Context{Home: home, ModelID: "gpt-5.2-codex", InstructionsFile: "/codex/base.md"})
	assert.Equal(t, "Base instructions from file.", got)
}

func TestBase_BlankOrMissingFileFallsThrough(t *testing.T) {
	r := newResolver(t, map[string]string{"/codex/blank.md": " \n\t"})

	assert.Equal(t, "Follow X.", r.Base(Context{Home: home, InstructionsFile: "blank.md", Instructions: "  Follow X. "}))
	assert.Equal(t, "Follow X.", r.Base(Context{Home: home, InstructionsFile: "missing.md", Instructions: "Follow X."}))
}

func TestBase_SystemTextAfterInline(t *testing.T) {
	r := newResolver(t, nil)
	r.Assets = fstest.MapFS{CodexPromptAsset: {Data: []byte("Codex prompt.")}}

	assert.Equal(t, "Be terse.", r.Base(Context{ModelID: "gpt-5-codex", System: " Be terse.\n"}))
	assert.Equal(t, "Follow X.", r.Base(Context{ModelID: "gpt-5-codex", System: "Be terse.", Instructions: "Follow X."}))
	assert.Equal(t, "Codex prompt.", r.Base(Context{ModelID: "gpt-5-codex", System: "bad\x01"}))
}

func TestBase_CodexModelUsesBundledPrompt(t *testing.T) {
	r := newResolver(t, nil)

	got := r.Base(Context{Home: home, ModelID: "gpt-5.2-codex"})
	assert.True(t, strings.HasPrefix(got, "You are Codex, based on GPT-5."))
	assert.NotEqual(t, DefaultCodexInstructions, got, "bundled prompt is longer than the literal fallback")
}

func TestBase_UnreadableBundleFallsBackToLiterals(t *testing.T) {
	r := newResolver(t, nil)
	r.Assets = fstest.MapFS{}

	assert.Equal(t, DefaultCodexInstructions, r.Base(Context{ModelID: "gpt-5-codex"}))
	assert.Equal(t, DefaultInstructions, r.Base(Context{ModelID: "llama-3"}))
	assert.Equal(t, DefaultInstructions, r.Base(Context{ModelID: "gpt-4o"}), "addendum is skipped when unreadable")
}

func TestBase_ApplyPatchAddendum(t *testing.T) {
	r := newResolver(t, nil)
	r.Assets = fstest.MapFS{
		GeneralPromptAsset:    {Data: []byte("General prompt.\n")},
		ApplyPatchPromptAsset: {Data: []byte("Use apply_patch.\n")},
	}

	tests := []struct {
		model string
		tools []string
		want  string
	}{
		{"gpt-4o-mini", nil, "General prompt.\n\nUse apply_patch."},
		{"gpt-4.1", []string{"shell"}, "General prompt.\n\nUse apply_patch."},
		{"o3", nil, "General prompt.\n\nUse apply_patch."},
		{"o4-mini", nil, "General prompt.\n\nUse apply_patch."},
		{"codex-mini-latest", nil, "General prompt.\n\nUse apply_patch."},
		{"gpt-5", nil, "General prompt.\n\nUse apply_patch."},
		{"gpt-5", []string{"shell", "apply_patch"}, "General prompt."},
		{"o1", nil, "General prompt."},
		{"claude-sonnet", nil, "General prompt."},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Base(Context{ModelID: tt.model, Tools: tt.tools}))
		})
	}
}

func TestBase_ValidationDropsCandidate(t *testing.T) {
	r := newResolver(t, map[string]string{"/codex/base.md": "bad\x00content"})
	r.Assets = fstest.MapFS{CodexPromptAsset: {Data: []byte("Codex prompt.")}}

	ctx := Context{Home: home, ModelID: "gpt-5-codex", InstructionsFile: "base.md", Instructions: strings.Repeat("a", MaxLength+1)}
	assert.Equal(t, "Codex prompt.", r.Base(ctx))

	ctx.ValidateContent = boolPtr(false)
	assert.Equal(t, "bad\x00content", r.Base(ctx))
}

func TestUser_Precedence(t *testing.T) {
	r := newResolver(t, map[string]string{
		"/codex/AGENTS.md": "Use these rules.\n",
		"/work/rules.md":   "Project rules.",
	})

	assert.Equal(t, "Use these rules.", r.User(Context{Home: home}))
	assert.Equal(t, "Project rules.", r.User(Context{Home: home, UserInstructionsFile: "/work/rules.md"}))
	assert.Equal(t, "Use these rules.", r.User(Context{Home: home, UserInstructionsFile: "nope.md"}))
	assert.Empty(t, r.User(Context{Home: home, IncludeUserInstructions: boolPtr(false)}))
	assert.Empty(t, r.User(Context{Home: "/elsewhere"}))
}

func TestUser_ValidationFallsThroughToAgents(t *testing.T) {
	r := newResolver(t, map[string]string{
		"/codex/AGENTS.md": "Use these rules.",
		"/codex/user.md":   "ring\a",
	})
	assert.Equal(t, "Use these rules.", r.User(Context{Home: home, UserInstructionsFile: "user.md"}))
}

func TestResolve_RereadsFilesEveryCall(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := NewResolver(fs)
	ctx := Context{Home: home, ModelID: "gpt-5-codex"}

	assert.Empty(t, r.Resolve(ctx).User)

	require.NoError(t, afero.WriteFile(fs, "/codex/AGENTS.md", []byte("v1"), 0644))
	assert.Equal(t, "v1", r.Resolve(ctx).User)

	require.NoError(t, afero.WriteFile(fs, "/codex/AGENTS.md", []byte("v2"), 0644))
	assert.Equal(t, "v2", r.Resolve(ctx).User)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("tabs\tand\nnewlines\r\n"))
	assert.True(t, Valid(strings.Repeat("é", MaxLength)), "limit counts characters, not bytes")
	assert.False(t, Valid(strings.Repeat("a", MaxLength+1)))
	assert.False(t, Valid("escape\x1b[0m"))
	assert.False(t, Valid("del\x7f"))
}
