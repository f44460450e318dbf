package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	mimeJSON            = "application/json"

	// maxErrorBody bounds how much of a provider error payload we keep.
	maxErrorBody = 32 << 10
)

// ===== OpenAI wire types =====

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type openAIDelta struct {
	Content *string `json:"content"`
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "function_call", "tool_calls":
		return FinishFunctionCall
	default:
		return FinishStop
	}
}

// parseOpenAIStreamLine decodes one SSE line. Only lines carrying delta
// content emit a chunk; the `[DONE]` sentinel terminates the sequence; any
// unparseable line is skipped so the stream keeps flowing.
func parseOpenAIStreamLine(data []byte) (StreamChunk, parseAction) {
	payload, ok := sseData(data)
	if !ok {
		return StreamChunk{}, skipUnit
	}
	payload = bytes.TrimSpace(payload)
	if bytes.Equal(payload, []byte("[DONE]")) {
		return StreamChunk{}, endStream
	}

	var resp openAIStreamResponse
	if err := json.Unmarshal(payload, &resp); err != nil || len(resp.Choices) == 0 {
		return StreamChunk{}, skipUnit
	}
	choice := resp.Choices[0]
	if choice.Delta.Content == nil {
		return StreamChunk{}, skipUnit
	}
	chunk := StreamChunk{Content: *choice.Delta.Content}
	if choice.FinishReason != nil {
		chunk.FinishReason = mapOpenAIFinishReason(*choice.FinishReason)
	}
	return chunk, emitChunk
}

// readErrorBody drains up to maxErrorBody bytes of a failed response.
func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return string(body)
}

// retryAfterHint reads the Retry-After header, defaulting when absent.
func retryAfterHint(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// statusError maps a non-2xx response to the matching error kind. Rate
// limits carry the Retry-After hint so the retry loop can honor it.
func statusError(provider string, resp *http.Response) *Error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return rateLimitError(provider, retryAfterHint(resp, 60*time.Second))
	case http.StatusUnauthorized, http.StatusForbidden:
		return authError(provider, "Invalid API key")
	default:
		return apiError(provider, strconv.Itoa(resp.StatusCode), readErrorBody(resp))
	}
}

// ===== adapter =====

// OpenAIAdapter speaks the OpenAI chat-completions protocol. It also serves
// "custom" providers, which are OpenAI-compatible by definition.
type OpenAIAdapter struct {
	config  ProviderConfig
	client  *http.Client
	cancels *cancelFlags
}

// NewOpenAIAdapter creates an adapter bound to one provider configuration.
func NewOpenAIAdapter(config ProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		cancels: newCancelFlags(),
	}
}

func (a *OpenAIAdapter) ProviderID() string { return a.config.ID }

func (a *OpenAIAdapter) Info() ProviderInfo {
	return ProviderInfo{
		ID:   a.config.ID,
		Name: a.config.Name,
		Kind: a.config.Kind,
		Models: []ModelInfo{
			{ID: "gpt-4o", Name: "GPT-4o", ContextLength: 128000, SupportsVision: true, SupportsFunctions: true},
			{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextLength: 128000, SupportsVision: true, SupportsFunctions: true},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextLength: 128000, SupportsVision: true, SupportsFunctions: true},
			{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextLength: 16385, SupportsFunctions: true},
		},
	}
}

// ListModels returns the hardcoded catalogue. The /models endpoint exists
// upstream but most OpenAI-compatible gateways do not implement it.
func (a *OpenAIAdapter) ListModels(_ context.Context) ([]ModelInfo, error) {
	return a.Info().Models, nil
}

func (a *OpenAIAdapter) apiURL(endpoint string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + "/" + endpoint
}

func (a *OpenAIAdapter) toWireRequest(req CompletionRequest, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}
	return openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.StopSequences,
		Stream:      stream,
	}
}

func (a *OpenAIAdapter) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: a.config.ID, Kind: ErrKindInvalidRequest, Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, networkError(a.config.ID, err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)
	httpReq.Header.Set(headerAuthorization, "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, networkError(a.config.ID, err)
	}
	return resp, nil
}

// Complete performs a blocking completion, retrying within the configured
// budget on retryable failures.
func (a *OpenAIAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return withRetry(ctx, a.config.MaxRetries, func() (*CompletionResponse, error) {
		return a.completeOnce(ctx, req)
	})
}

func (a *OpenAIAdapter) completeOnce(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.post(ctx, "chat/completions", a.toWireRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(a.config.ID, resp)
	}

	var wire openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &Error{Provider: a.config.ID, Kind: ErrKindInvalidRequest, Message: "decode completion response", Cause: err}
	}
	if len(wire.Choices) == 0 {
		return nil, apiError(a.config.ID, "empty_choices", "no choices in response")
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

// CompleteStream starts an SSE stream. The returned ChunkStream observes the
// per-request cancel flag at every Recv.
func (a *OpenAIAdapter) CompleteStream(ctx context.Context, req CompletionRequest) (ChunkStream, error) {
	resp, err := a.post(ctx, "chat/completions", a.toWireRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		return nil, statusError(a.config.ID, resp)
	}

	dec := newLineDecoder(resp.Body)
	flag, release := a.cancels.register(req.RequestID)
	return newHTTPStream(a.config.ID, resp.Body, dec.next, parseOpenAIStreamLine).
		withCancel(flag, release), nil
}

// Cancel halts chunk emission of the stream registered under requestID on
// its next poll. Unknown ids are ignored.
func (a *OpenAIAdapter) Cancel(requestID string) {
	a.cancels.cancel(requestID)
}

// HealthCheck probes the models endpoint and reports reachability plus
// latency. The probe error is captured, never propagated.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL("models"), nil)
	if err != nil {
		return HealthStatus{Error: err.Error()}
	}
	httpReq.Header.Set(headerAuthorization, "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return HealthStatus{Error: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	latency := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HealthStatus{Latency: latency, Error: fmt.Sprintf("API returned %d", resp.StatusCode)}
	}
	return HealthStatus{Healthy: true, Latency: latency}
}
