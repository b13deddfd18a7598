package provider

import (
	"context"

	"github.com/spf13/afero"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/instructions"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/logging"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// TransportFactory builds the transport for a resolved profile.
type TransportFactory func(profile *config.Profile) (Transport, error)

// Options configures a Provider.
type Options struct {
	// Name identifies the provider in errors and provider metadata.
	Name string
	// Home overrides the settings home directory.
	Home string
	// UseCodexConfigModel, when explicitly false, lets a requested model id
	// override the model from config.toml.
	UseCodexConfigModel *bool

	Instructions            string
	InstructionsFile        string
	UserInstructionsFile    string
	IncludeUserInstructions *bool
	ValidateContent         *bool
	Pricing                 *types.Pricing

	// Env and Fs default to the process environment and the OS file system.
	Env config.Env
	Fs  afero.Fs

	// NewTransport defaults to NewOpenAITransport.
	NewTransport TransportFactory
}

func (o Options) name() string {
	if o.Name != "" {
		return o.Name
	}
	return DefaultName
}

// Provider resolves model handles from the codex settings home. Every call
// re-reads the settings, so edits take effect on the next model request.
type Provider struct {
	opts Options
}

// New creates a provider.
func New(opts Options) *Provider {
	return &Provider{opts: opts}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.opts.name()
}

// Profile resolves the current connection profile.
func (p *Provider) Profile() (*config.Profile, error) {
	return config.Resolve(config.Options{Home: p.opts.Home, Env: p.opts.Env, Fs: p.opts.Fs})
}

// LanguageModel returns a handle using the configured wire API.
func (p *Provider) LanguageModel(ctx context.Context, modelID string) (LanguageModel, error) {
	return CreateLanguageModel(ctx, p.opts, modelID, "")
}

// Chat returns a handle that always uses the chat wire API.
func (p *Provider) Chat(ctx context.Context, modelID string) (LanguageModel, error) {
	return CreateLanguageModel(ctx, p.opts, modelID, config.WireAPIChat)
}

// Responses returns a handle that always uses the responses wire API.
func (p *Provider) Responses(ctx context.Context, modelID string) (LanguageModel, error) {
	return CreateLanguageModel(ctx, p.opts, modelID, config.WireAPIResponses)
}

// EmbeddingModel always fails with *UnsupportedError.
func (p *Provider) EmbeddingModel(modelID string) (EmbeddingModel, error) {
	return nil, &UnsupportedError{Provider: p.Name(), Capability: "embeddings"}
}

// ImageModel always fails with *UnsupportedError.
func (p *Provider) ImageModel(modelID string) (ImageModel, error) {
	return nil, &UnsupportedError{Provider: p.Name(), Capability: "images"}
}

// Instructions resolves the base and user instructions a responses call
// against modelID would send. Declared tools are not known here, so the
// apply_patch addendum follows the model id alone.
func (p *Provider) Instructions(modelID string) (instructions.Resolved, error) {
	profile, err := p.Profile()
	if err != nil {
		return instructions.Resolved{}, err
	}
	resolved := config.ResolveModel(profile.Model, modelID, p.opts.UseCodexConfigModel)
	ic := instructionContext(p.opts, profile.Home, resolved)
	return instructions.NewResolver(p.opts.Fs).Resolve(ic), nil
}

// CreateLanguageModel resolves the profile and returns the handle for
// modelID. An empty override uses the profile's wire API. Responses handles
// are wrapped in a ResponsesModel.
func CreateLanguageModel(ctx context.Context, opts Options, modelID string, override config.WireAPI) (LanguageModel, error) {
	log := logging.Component("provider")

	profile, err := config.Resolve(config.Options{Home: opts.Home, Env: opts.Env, Fs: opts.Fs})
	if err != nil {
		return nil, err
	}

	resolved := config.ResolveModel(profile.Model, modelID, opts.UseCodexConfigModel)
	if resolved == "" {
		return nil, ErrNoModel
	}
	if profile.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	newTransport := opts.NewTransport
	if newTransport == nil {
		newTransport = func(p *config.Profile) (Transport, error) { return NewOpenAITransport(p) }
	}
	transport, err := newTransport(profile)
	if err != nil {
		return nil, err
	}

	wireAPI := profile.WireAPI
	if override != "" {
		wireAPI = override
	}

	log.Debug().
		Str("providerId", profile.ProviderID).
		Str("model", resolved).
		Str("wireApi", string(wireAPI)).
		Msg("selecting model")

	handle, err := SelectModel(transport, wireAPI, resolved)
	if err != nil {
		return nil, err
	}
	if wireAPI != config.WireAPIResponses {
		return handle, nil
	}

	return NewResponsesModel(
		handle,
		instructions.NewResolver(opts.Fs),
		instructionContext(opts, profile.Home, resolved),
		stream.CollectOptions{Pricing: opts.Pricing, ProviderName: opts.name()},
	), nil
}

func instructionContext(opts Options, home, modelID string) instructions.Context {
	return instructions.Context{
		Home:                    home,
		ModelID:                 modelID,
		Instructions:            opts.Instructions,
		InstructionsFile:        opts.InstructionsFile,
		UserInstructionsFile:    opts.UserInstructionsFile,
		IncludeUserInstructions: opts.IncludeUserInstructions,
		ValidateContent:         opts.ValidateContent,
		Pricing:                 opts.Pricing,
	}
}
