package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// DefaultName is the provider name used when Options.Name is empty.
const DefaultName = "codex-config"

var (
	// ErrNoModel is returned when neither the caller nor config.toml names a model.
	ErrNoModel = errors.New("no model configured (set model in ~/.codex/config.toml or pass a model id)")
	// ErrNoBaseURL is returned when the selected model provider has no endpoint.
	ErrNoBaseURL = errors.New("no base_url configured for the selected model provider")
)

// LanguageModel is a callable model handle.
type LanguageModel interface {
	// Generate runs a call to completion.
	Generate(ctx context.Context, opts *types.CallOptions) (*types.Result, error)
	// Stream starts a call and returns its event stream. The caller must
	// close the stream.
	Stream(ctx context.Context, opts *types.CallOptions) (*stream.Stream, error)
}

// Transport builds model handles for each wire API.
type Transport interface {
	Chat(modelID string) (LanguageModel, error)
	Responses(modelID string) (LanguageModel, error)
}

// EmbeddingModel is part of the generic provider contract. This provider
// never returns one.
type EmbeddingModel interface {
	Embed(ctx context.Context, values []string) ([][]float64, error)
}

// ImageModel is part of the generic provider contract. This provider never
// returns one.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string) ([][]byte, error)
}

// UnsupportedError reports a model kind this provider does not offer.
type UnsupportedError struct {
	Provider   string
	Capability string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Provider, e.Capability)
}

// SelectModel asks the transport for the handle matching wireAPI. Exactly one
// transport method is called.
func SelectModel(t Transport, wireAPI config.WireAPI, modelID string) (LanguageModel, error) {
	if wireAPI == config.WireAPIChat {
		return t.Chat(modelID)
	}
	return t.Responses(modelID)
}
