package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeConfigError    = "CONFIG_ERROR"
	ErrCodeUnsupported    = "UNSUPPORTED"
	ErrCodeProviderError  = "PROVIDER_ERROR"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeProviderError maps a provider failure to a status and error code.
// Upstream HTTP failures keep their status.
func writeProviderError(w http.ResponseWriter, err error) {
	var (
		cfgErr      *config.ConfigError
		apiErr      *openai.Error
		unsupported *provider.UnsupportedError
	)
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, provider.ErrNoModel),
		errors.Is(err, provider.ErrNoBaseURL):
		writeError(w, http.StatusInternalServerError, ErrCodeConfigError, err.Error())
	case errors.As(err, &unsupported):
		writeError(w, http.StatusNotImplemented, ErrCodeUnsupported, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, apiErr.StatusCode, ErrCodeProviderError, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
	}
}
