package event

import (
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// GenerationStartedData is the data for generation.started events.
type GenerationStartedData struct {
	ID      string `json:"id"`
	ModelID string `json:"modelId"`
	Stream  bool   `json:"stream"`
}

// GenerationFinishedData is the data for generation.finished events.
type GenerationFinishedData struct {
	ID           string      `json:"id"`
	ModelID      string      `json:"modelId"`
	FinishReason string      `json:"finishReason"`
	Usage        types.Usage `json:"usage"`
	// Cost is set when pricing is configured.
	Cost *float64 `json:"cost,omitempty"`
}

// GenerationFailedData is the data for generation.failed events.
type GenerationFailedData struct {
	ID      string `json:"id"`
	ModelID string `json:"modelId"`
	Error   string `json:"error"`
}

// SettingsChangedData is the data for settings.changed events.
type SettingsChangedData struct {
	Path string `json:"path"`
}
