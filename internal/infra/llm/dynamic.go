package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// dynamicTimeout is generous on purpose: ad-hoc endpoints are often slow
// self-hosted gateways.
const dynamicTimeout = 120 * time.Second

// DynamicConfig carries connection details supplied at call time instead of
// from a registered provider. The endpoint must be OpenAI-compatible.
type DynamicConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

// DynamicAdapter sends one-off requests to endpoints the user types in
// without registering a provider first. It is stateless; every call carries
// its own DynamicConfig.
type DynamicAdapter struct {
	client *http.Client
}

// NewDynamicAdapter creates the shared call-time adapter.
func NewDynamicAdapter() *DynamicAdapter {
	return &DynamicAdapter{client: &http.Client{Timeout: dynamicTimeout}}
}

func (a *DynamicAdapter) ProviderID() string { return "dynamic" }

func (a *DynamicAdapter) post(ctx context.Context, cfg DynamicConfig, req CompletionRequest, stream bool) (*http.Response, error) {
	model := req.Model
	if model == "" {
		model = cfg.Model
	}
	body, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
		Stream:      stream,
	})
	if err != nil {
		return nil, &Error{Provider: "dynamic", Kind: ErrKindInvalidRequest, Cause: err}
	}
	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, networkError("dynamic", err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)
	if cfg.APIKey != "" {
		httpReq.Header.Set(headerAuthorization, "Bearer "+cfg.APIKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, networkError("dynamic", err)
	}
	return resp, nil
}

// Complete performs a blocking completion against the supplied endpoint.
func (a *DynamicAdapter) Complete(ctx context.Context, cfg DynamicConfig, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.post(ctx, cfg, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("dynamic", resp)
	}

	var wire openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &Error{Provider: "dynamic", Kind: ErrKindInvalidRequest, Message: "decode completion response", Cause: err}
	}
	if len(wire.Choices) == 0 {
		return nil, apiError("dynamic", "empty_choices", "no choices in response")
	}
	choice := wire.Choices[0]
	out := &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
	}
	if wire.Usage != nil {
		out.Usage = TokenUsage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}
	return out, nil
}

// CompleteStream opens an SSE stream against the supplied endpoint.
func (a *DynamicAdapter) CompleteStream(ctx context.Context, cfg DynamicConfig, req CompletionRequest) (ChunkStream, error) {
	resp, err := a.post(ctx, cfg, req, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		return nil, statusError("dynamic", resp)
	}

	dec := newLineDecoder(resp.Body)
	return newHTTPStream("dynamic", resp.Body, dec.next, parseOpenAIStreamLine), nil
}

// ===== mock =====

// mockFragmentSize controls how the mock splits its reply into chunks.
const mockFragmentSize = 8

// MockAdapter is an offline provider used when no real endpoint is
// configured and in tests. It echoes the last user message.
type MockAdapter struct {
	config ProviderConfig
}

// NewMockAdapter creates the offline adapter.
func NewMockAdapter(config ProviderConfig) *MockAdapter {
	return &MockAdapter{config: config}
}

func (a *MockAdapter) ProviderID() string { return a.config.ID }

func (a *MockAdapter) Info() ProviderInfo {
	return ProviderInfo{
		ID:   a.config.ID,
		Name: a.config.Name,
		Kind: a.config.Kind,
		Models: []ModelInfo{
			{ID: "mock-echo", Name: "Mock Echo", ContextLength: 8192},
		},
	}
}

func (a *MockAdapter) ListModels(_ context.Context) ([]ModelInfo, error) {
	return a.Info().Models, nil
}

func mockReply(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return "You said: " + messages[i].Content
		}
	}
	return "Hello! I'm running in offline mode."
}

func (a *MockAdapter) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{
		Content:      mockReply(req.Messages),
		FinishReason: FinishStop,
		Usage:        TokenUsage{PromptTokens: 10, CompletionTokens: 50, TotalTokens: 60},
	}, nil
}

func (a *MockAdapter) CompleteStream(_ context.Context, req CompletionRequest) (ChunkStream, error) {
	reply := mockReply(req.Messages)
	var chunks []StreamChunk
	for len(reply) > mockFragmentSize {
		chunks = append(chunks, StreamChunk{Content: reply[:mockFragmentSize]})
		reply = reply[mockFragmentSize:]
	}
	chunks = append(chunks, StreamChunk{
		Content:      reply,
		FinishReason: FinishStop,
		Usage:        &TokenUsage{PromptTokens: 10, CompletionTokens: 50, TotalTokens: 60},
	})
	return newSliceStream(chunks), nil
}

func (a *MockAdapter) Cancel(string) {}

func (a *MockAdapter) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{Healthy: true}
}
