package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BegoniaHe/kizuna/internal/infra/llm"
)

// ProviderHandler exposes registry introspection plus the dynamic one-off
// completion endpoint for endpoints the user has not registered.
type ProviderHandler struct {
	registry *llm.Registry
	dynamic  *llm.DynamicAdapter
}

func NewProviderHandler(registry *llm.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry, dynamic: llm.NewDynamicAdapter()}
}

// List handles GET /providers.
func (h *ProviderHandler) List(w http.ResponseWriter, _ *http.Request) {
	infos := h.registry.ListProviders()
	if infos == nil {
		infos = []llm.ProviderInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// Register handles POST /providers: registers (or replaces) a provider
// configuration and returns the adapter's self-description.
func (h *ProviderHandler) Register(w http.ResponseWriter, r *http.Request) {
	var cfg llm.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cfg.ID == "" {
		writeError(w, http.StatusBadRequest, "provider id is required")
		return
	}
	defaults := llm.DefaultProviderConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	adapter := h.registry.Register(cfg)
	writeJSON(w, http.StatusCreated, adapter.Info())
}

// Unregister handles DELETE /providers/{id}.
func (h *ProviderHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	h.registry.Invalidate(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Models handles GET /providers/{id}/models.
func (h *ProviderHandler) Models(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	models, err := adapter.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// Health handles GET /providers/{id}/health.
func (h *ProviderHandler) Health(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, adapter.HealthCheck(r.Context()))
}

type dynamicCompleteRequest struct {
	llm.DynamicConfig
	Messages []llm.Message `json:"messages"`
}

// DynamicComplete handles POST /dynamic/complete: a blocking completion
// against an ad-hoc OpenAI-compatible endpoint supplied in the request.
func (h *ProviderHandler) DynamicComplete(w http.ResponseWriter, r *http.Request) {
	var req dynamicCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BaseURL == "" || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "base_url and messages are required")
		return
	}

	resp, err := h.dynamic.Complete(r.Context(), req.DynamicConfig, llm.CompletionRequest{Messages: req.Messages})
	if err != nil {
		switch {
		case llm.IsKind(err, llm.ErrKindAuth):
			writeError(w, http.StatusUnauthorized, err.Error())
		case llm.IsKind(err, llm.ErrKindRateLimit):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
