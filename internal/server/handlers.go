package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/event"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/logging"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// GenerateRequest is the body of POST /generate and POST /stream.
type GenerateRequest struct {
	// Model is the requested model id. Whether it is honored depends on the
	// provider's UseCodexConfigModel option.
	Model string `json:"model,omitempty"`
	// WireAPI forces "chat" or "responses"; empty uses the profile's.
	WireAPI string `json:"wireApi,omitempty"`

	types.CallOptions
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": s.provider.Name(),
	})
}

// getConfig handles GET /config
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	profile, err := s.provider.Profile()
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile.Redacted())
}

// getInstructions handles GET /instructions?model=
func (s *Server) getInstructions(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.provider.Instructions(r.URL.Query().Get("model"))
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*GenerateRequest, bool) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return nil, false
	}
	if req.WireAPI != "" {
		if _, err := config.ParseWireAPI(req.WireAPI); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return nil, false
		}
	}
	return &req, true
}

func (s *Server) languageModel(ctx context.Context, req *GenerateRequest) (provider.LanguageModel, error) {
	switch config.WireAPI(req.WireAPI) {
	case config.WireAPIChat:
		return s.provider.Chat(ctx, req.Model)
	case config.WireAPIResponses:
		return s.provider.Responses(ctx, req.Model)
	default:
		return s.provider.LanguageModel(ctx, req.Model)
	}
}

// generate handles POST /generate
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	model, err := s.languageModel(r.Context(), req)
	if err != nil {
		writeProviderError(w, err)
		return
	}

	gen := s.startGeneration(req.Model, false)
	result, err := model.Generate(r.Context(), &req.CallOptions)
	if err != nil {
		gen.fail(err)
		writeProviderError(w, err)
		return
	}
	gen.finish(result.Response.ModelID, result.FinishReason, result.Usage, s.cost(result.ProviderMetadata))

	writeJSON(w, http.StatusOK, result)
}

// streamGenerate handles POST /stream: every stream event is written as one
// SSE message named after its type.
func (s *Server) streamGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	model, err := s.languageModel(r.Context(), req)
	if err != nil {
		writeProviderError(w, err)
		return
	}

	gen := s.startGeneration(req.Model, true)
	st, err := model.Stream(r.Context(), &req.CallOptions)
	if err != nil {
		gen.fail(err)
		writeProviderError(w, err)
		return
	}
	defer st.Close()

	sse, err := startSSE(w)
	if err != nil {
		gen.fail(err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	for {
		ev, err := st.Recv()
		if errors.Is(err, io.EOF) {
			// A stream may end without a finish event.
			gen.finish("", types.FinishUnknown, types.Usage{}, nil)
			return
		}
		if err != nil {
			ev = stream.Error{Err: err}
		}

		data, merr := stream.Marshal(ev)
		if merr != nil {
			gen.fail(merr)
			return
		}
		if werr := sse.writeRaw(ev.EventType(), data); werr != nil {
			gen.fail(werr)
			return
		}

		switch e := ev.(type) {
		case stream.ResponseMetadata:
			if e.ModelID != "" {
				gen.modelID = e.ModelID
			}
		case stream.Finish:
			var usage types.Usage
			if e.Usage != nil {
				usage = *e.Usage
			}
			gen.finish("", e.FinishReason, usage, nil)
		case stream.Error:
			gen.fail(e.Err)
			return
		}
	}
}

// cost returns the cost the collector attached under this provider's name.
func (s *Server) cost(meta types.ProviderMetadata) *float64 {
	if c, ok := meta[s.provider.Name()][stream.CostKey].(float64); ok {
		return &c
	}
	return nil
}

// generation publishes the lifecycle events of one call.
type generation struct {
	bus     *event.Bus
	id      string
	modelID string
	done    bool
}

func (s *Server) startGeneration(modelID string, streaming bool) *generation {
	g := &generation{bus: s.bus, id: "gen_" + ulid.Make().String(), modelID: modelID}
	g.publish(event.GenerationStarted, event.GenerationStartedData{ID: g.id, ModelID: modelID, Stream: streaming})
	return g
}

func (g *generation) finish(modelID, reason string, usage types.Usage, cost *float64) {
	if g.done {
		return
	}
	g.done = true
	if modelID != "" {
		g.modelID = modelID
	}
	g.publish(event.GenerationFinished, event.GenerationFinishedData{
		ID:           g.id,
		ModelID:      g.modelID,
		FinishReason: reason,
		Usage:        usage,
		Cost:         cost,
	})
}

func (g *generation) fail(err error) {
	if g.done {
		return
	}
	g.done = true
	g.publish(event.GenerationFailed, event.GenerationFailedData{ID: g.id, ModelID: g.modelID, Error: err.Error()})
}

func (g *generation) publish(t event.EventType, data any) {
	if err := g.bus.Publish(event.Event{Type: t, Data: data}); err != nil {
		logging.Warn().Err(err).Str("eventType", string(t)).Msg("event publish failed")
	}
}
