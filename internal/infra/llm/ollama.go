package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// ===== Ollama wire types =====

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaResponse covers both the blocking response and each NDJSON stream
// object; Ollama uses the same shape for both, with the token counts only
// present on the terminal (done:true) object.
type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func ollamaOptions(req CompletionRequest) map[string]any {
	opts := make(map[string]any)
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens != 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		opts["stop"] = req.StopSequences
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// parseOllamaLine decodes one NDJSON object. The done:true object is a
// terminal chunk carrying the finish reason and token counts, and may still
// carry trailing content, so it is emitted rather than skipped; the daemon
// closes the connection right after it, so EOF follows on the next poll.
func parseOllamaLine(data []byte) (StreamChunk, parseAction) {
	if len(bytes.TrimSpace(data)) == 0 {
		return StreamChunk{}, skipUnit
	}
	var resp ollamaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return StreamChunk{}, skipUnit
	}
	chunk := StreamChunk{Content: resp.Message.Content}
	if resp.Done {
		chunk.FinishReason = FinishStop
		chunk.Usage = &TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
		return chunk, emitChunk
	}
	if chunk.Content == "" {
		return StreamChunk{}, skipUnit
	}
	return chunk, emitChunk
}

// ===== adapter =====

// OllamaAdapter talks to a local Ollama daemon. No authentication; model
// listing is live via /api/tags with a hardcoded fallback.
type OllamaAdapter struct {
	config ProviderConfig
	client *http.Client
}

// NewOllamaAdapter creates an adapter bound to one provider configuration.
func NewOllamaAdapter(config ProviderConfig) *OllamaAdapter {
	return &OllamaAdapter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (a *OllamaAdapter) ProviderID() string { return a.config.ID }

func fallbackOllamaModels() []ModelInfo {
	return []ModelInfo{
		{ID: "llama3.2", Name: "Llama 3.2", ContextLength: 128000},
		{ID: "qwen2.5", Name: "Qwen 2.5", ContextLength: 32768},
		{ID: "mistral", Name: "Mistral", ContextLength: 32768},
	}
}

func (a *OllamaAdapter) Info() ProviderInfo {
	return ProviderInfo{
		ID:     a.config.ID,
		Name:   a.config.Name,
		Kind:   a.config.Kind,
		Models: fallbackOllamaModels(),
	}
}

func (a *OllamaAdapter) apiURL(endpoint string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + "/" + endpoint
}

// ListModels queries the daemon for installed models, falling back to a
// static set when the daemon is unreachable.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL("api/tags"), nil)
	if err != nil {
		return fallbackOllamaModels(), nil
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fallbackOllamaModels(), nil
	}
	defer resp.Body.Close() //nolint:errcheck

	var tags ollamaTagsResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&tags) != nil {
		return fallbackOllamaModels(), nil
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{ID: m.Name, Name: m.Name})
	}
	if len(models) == 0 {
		return fallbackOllamaModels(), nil
	}
	return models, nil
}

func (a *OllamaAdapter) toWireRequest(req CompletionRequest, stream bool) ollamaRequest {
	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}
	return ollamaRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   stream,
		Options:  ollamaOptions(req),
	}
}

func (a *OllamaAdapter) post(ctx context.Context, payload ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: a.config.ID, Kind: ErrKindInvalidRequest, Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL("api/chat"), bytes.NewReader(body))
	if err != nil {
		return nil, networkError(a.config.ID, err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, networkError(a.config.ID, err)
	}
	return resp, nil
}

func (a *OllamaAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return withRetry(ctx, a.config.MaxRetries, func() (*CompletionResponse, error) {
		return a.completeOnce(ctx, req)
	})
}

func (a *OllamaAdapter) completeOnce(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.post(ctx, a.toWireRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(a.config.ID, resp)
	}

	var wire ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &Error{Provider: a.config.ID, Kind: ErrKindInvalidRequest, Message: "decode completion response", Cause: err}
	}
	return &CompletionResponse{
		Content:      wire.Message.Content,
		FinishReason: FinishStop,
		Usage: TokenUsage{
			PromptTokens:     wire.PromptEvalCount,
			CompletionTokens: wire.EvalCount,
			TotalTokens:      wire.PromptEvalCount + wire.EvalCount,
		},
	}, nil
}

func (a *OllamaAdapter) CompleteStream(ctx context.Context, req CompletionRequest) (ChunkStream, error) {
	resp, err := a.post(ctx, a.toWireRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		return nil, statusError(a.config.ID, resp)
	}

	dec := newLineDecoder(resp.Body)
	return newHTTPStream(a.config.ID, resp.Body, dec.next, parseOllamaLine), nil
}

// Cancel is a no-op; the chat endpoint ends the stream on its own.
func (a *OllamaAdapter) Cancel(string) {}

// HealthCheck probes /api/tags, which any running daemon serves.
func (a *OllamaAdapter) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL("api/tags"), nil)
	if err != nil {
		return HealthStatus{Error: err.Error()}
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return HealthStatus{Error: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	latency := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return HealthStatus{Latency: latency, Error: "daemon returned " + resp.Status}
	}
	return HealthStatus{Healthy: true, Latency: latency}
}
