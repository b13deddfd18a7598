// Package instructions resolves the system instruction and the optional user
// instruction attached to every responses call.
package instructions

import (
	"embed"
	"io/fs"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

//go:embed prompts/*.md
var bundled embed.FS

// Bundled asset names.
const (
	GeneralPromptAsset    = "prompts/prompt.md"
	CodexPromptAsset      = "prompts/gpt_5_codex_prompt.md"
	ApplyPatchPromptAsset = "prompts/apply_patch_instructions.md"
)

const (
	// DefaultCodexInstructions is used for codex models when the bundled
	// prompt cannot be read.
	DefaultCodexInstructions = "You are Codex, based on GPT-5. You are running as a coding agent in the Codex CLI on a user's computer."
	// DefaultInstructions is used for other models when the bundled prompt
	// cannot be read.
	DefaultInstructions = "You are a coding agent running in the Codex CLI, a terminal-based coding assistant. You are expected to be precise, safe, and helpful."

	// MaxLength is the largest instruction accepted by validation, in characters.
	MaxLength = 64000

	// ApplyPatchToolName is the tool that makes the apply_patch addendum redundant.
	ApplyPatchToolName = "apply_patch"

	// codexMarker picks out the agent-tuned gpt-5 codex variants. codex-mini
	// is not one of them.
	codexMarker = "-codex"
)

// applyPatchModelPrefixes lists model families that need the apply_patch
// addendum appended to the general prompt.
var applyPatchModelPrefixes = []string{
	"gpt-3.5",
	"gpt-4o",
	"gpt-4.1",
	"gpt-5",
	"o3",
	"o4-mini",
	"codex-mini",
}

// Context describes one call. File fields are read on every resolution.
type Context struct {
	Home    string
	ModelID string

	Instructions         string
	InstructionsFile     string
	UserInstructionsFile string

	// System is the text of the prompt's system messages.
	System string

	// IncludeUserInstructions defaults to true.
	IncludeUserInstructions *bool
	// ValidateContent defaults to true.
	ValidateContent *bool

	Pricing *types.Pricing
	Tools   []string
}

func (c Context) includeUser() bool {
	return c.IncludeUserInstructions == nil || *c.IncludeUserInstructions
}

func (c Context) validate() bool {
	return c.ValidateContent == nil || *c.ValidateContent
}

// Resolved is the outcome of a resolution. User is empty when no user
// instruction applies.
type Resolved struct {
	Base string `json:"base" yaml:"base"`
	User string `json:"user,omitempty" yaml:"user,omitempty"`
}

// Resolver reads instruction sources from a file system and the bundled
// prompt assets.
type Resolver struct {
	Fs     afero.Fs
	Assets fs.FS
}

// NewResolver creates a resolver over fsys with the bundled prompts. A nil
// fsys means the OS file system.
func NewResolver(fsys afero.Fs) *Resolver {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Resolver{Fs: fsys, Assets: bundled}
}

// Resolve returns both instruction strings for the call.
func (r *Resolver) Resolve(c Context) Resolved {
	return Resolved{Base: r.Base(c), User: r.User(c)}
}

// Base returns the system instruction. The first acceptable source wins:
// instructions file, inline instructions, the prompt's system text, the
// bundled codex prompt for codex models, and finally the bundled general
// prompt.
func (r *Resolver) Base(c Context) string {
	if c.InstructionsFile != "" {
		if text, ok := r.accept(c, r.readFile(config.ResolvePath(c.Home, c.InstructionsFile))); ok {
			return text
		}
	}
	if text, ok := r.accept(c, strings.TrimSpace(c.Instructions)); ok {
		return text
	}
	if text, ok := r.accept(c, strings.TrimSpace(c.System)); ok {
		return text
	}

	if strings.Contains(c.ModelID, codexMarker) {
		if text, ok := r.accept(c, r.readAsset(CodexPromptAsset)); ok {
			return text
		}
		return DefaultCodexInstructions
	}

	base, ok := r.accept(c, r.readAsset(GeneralPromptAsset))
	if !ok {
		base = DefaultInstructions
	}
	if needsApplyPatch(c.ModelID, c.Tools) {
		if addendum, ok := r.accept(c, r.readAsset(ApplyPatchPromptAsset)); ok {
			base += "\n\n" + addendum
		}
	}
	return base
}

// User returns the user instruction, or "" when disabled or absent. The user
// instructions file wins over AGENTS.md in the settings home.
func (r *Resolver) User(c Context) string {
	if !c.includeUser() {
		return ""
	}
	if c.UserInstructionsFile != "" {
		if text, ok := r.accept(c, r.readFile(config.ResolvePath(c.Home, c.UserInstructionsFile))); ok {
			return text
		}
	}
	if text, ok := r.accept(c, r.readFile(config.ResolvePath(c.Home, config.AgentsFileName))); ok {
		return text
	}
	return ""
}

func (r *Resolver) accept(c Context, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if c.validate() && !Valid(text) {
		return "", false
	}
	return text, true
}

// readFile returns the trimmed file content, or "" when it cannot be read.
func (r *Resolver) readFile(path string) string {
	fsys := r.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (r *Resolver) readAsset(name string) string {
	assets := r.Assets
	if assets == nil {
		assets = bundled
	}
	data, err := fs.ReadFile(assets, name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Valid reports whether text passes content validation: at most MaxLength
// characters and no control characters other than tab, line feed and
// carriage return.
func Valid(text string) bool {
	if utf8.RuneCountInString(text) > MaxLength {
		return false
	}
	for _, r := range text {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func needsApplyPatch(modelID string, tools []string) bool {
	if slices.Contains(tools, ApplyPatchToolName) {
		return false
	}
	return lo.SomeBy(applyPatchModelPrefixes, func(prefix string) bool {
		return strings.HasPrefix(modelID, prefix)
	})
}
