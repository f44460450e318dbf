package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicVersion = "2023-06-01"

	// claudeDefaultMaxTokens applies when the request does not set a limit;
	// the messages API rejects requests without one.
	claudeDefaultMaxTokens = 4096
)

// ===== Claude wire types =====

type claudeRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	Messages      []Message `json:"messages"`
	System        string    `json:"system,omitempty"`
	Temperature   float32   `json:"temperature,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream,omitempty"`
}

type claudeResponse struct {
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// claudeStreamEvent covers every event type we care about; irrelevant fields
// stay zero for the other types.
type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *claudeUsage `json:"usage"`
}

func mapClaudeStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishFunctionCall
	default:
		return FinishStop
	}
}

// splitSystemMessages pulls system-role messages out of the conversation.
// Claude takes the system prompt as a top-level field, and any role other
// than user/assistant is rejected, so strays are coerced to user.
func splitSystemMessages(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser, RoleAssistant:
			rest = append(rest, m)
		default:
			rest = append(rest, Message{Role: RoleUser, Content: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), rest
}

// parseClaudeEvent decodes one SSE event block. Only content_block_delta
// events carry text; message_delta carries the stop reason and output usage;
// message_stop ends the stream. Everything else (message_start, ping,
// content_block_start/stop) is skipped.
func parseClaudeEvent(block []byte) (StreamChunk, parseAction) {
	var payload []byte
	for _, line := range bytes.Split(block, []byte("\n")) {
		if data, ok := sseData(line); ok {
			payload = data
			break
		}
	}
	if payload == nil {
		return StreamChunk{}, skipUnit
	}

	var event claudeStreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return StreamChunk{}, skipUnit
	}

	switch event.Type {
	case "content_block_delta":
		if event.Delta.Text == "" {
			return StreamChunk{}, skipUnit
		}
		return StreamChunk{Content: event.Delta.Text}, emitChunk
	case "message_delta":
		chunk := StreamChunk{FinishReason: mapClaudeStopReason(event.Delta.StopReason)}
		if event.Usage != nil {
			chunk.Usage = &TokenUsage{
				PromptTokens:     event.Usage.InputTokens,
				CompletionTokens: event.Usage.OutputTokens,
				TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
			}
		}
		return chunk, emitChunk
	case "message_stop":
		return StreamChunk{}, endStream
	default:
		return StreamChunk{}, skipUnit
	}
}

// ===== adapter =====

// ClaudeAdapter speaks the Anthropic messages protocol.
type ClaudeAdapter struct {
	config ProviderConfig
	client *http.Client
}

// NewClaudeAdapter creates an adapter bound to one provider configuration.
func NewClaudeAdapter(config ProviderConfig) *ClaudeAdapter {
	return &ClaudeAdapter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (a *ClaudeAdapter) ProviderID() string { return a.config.ID }

func (a *ClaudeAdapter) Info() ProviderInfo {
	return ProviderInfo{
		ID:   a.config.ID,
		Name: a.config.Name,
		Kind: a.config.Kind,
		Models: []ModelInfo{
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextLength: 200000, SupportsVision: true, SupportsFunctions: true},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextLength: 200000, SupportsVision: true, SupportsFunctions: true},
			{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", ContextLength: 200000, SupportsVision: true, SupportsFunctions: true},
		},
	}
}

// ListModels returns the hardcoded catalogue; Anthropic has no public
// listing endpoint compatible with this adapter.
func (a *ClaudeAdapter) ListModels(_ context.Context) ([]ModelInfo, error) {
	return a.Info().Models, nil
}

func (a *ClaudeAdapter) apiURL(endpoint string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + "/" + endpoint
}

func (a *ClaudeAdapter) toWireRequest(req CompletionRequest, stream bool) claudeRequest {
	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = claudeDefaultMaxTokens
	}
	system, messages := splitSystemMessages(req.Messages)
	return claudeRequest{
		Model:         model,
		MaxTokens:     maxTokens,
		Messages:      messages,
		System:        system,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
		Stream:        stream,
	}
}

func (a *ClaudeAdapter) post(ctx context.Context, payload claudeRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: a.config.ID, Kind: ErrKindInvalidRequest, Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL("v1/messages"), bytes.NewReader(body))
	if err != nil {
		return nil, networkError(a.config.ID, err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, networkError(a.config.ID, err)
	}
	return resp, nil
}

func (a *ClaudeAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return withRetry(ctx, a.config.MaxRetries, func() (*CompletionResponse, error) {
		return a.completeOnce(ctx, req)
	})
}

func (a *ClaudeAdapter) completeOnce(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.post(ctx, a.toWireRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(a.config.ID, resp)
	}

	var wire claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &Error{Provider: a.config.ID, Kind: ErrKindInvalidRequest, Message: "decode completion response", Cause: err}
	}

	var content strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Content:      content.String(),
		FinishReason: mapClaudeStopReason(wire.StopReason),
		Usage: TokenUsage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
	}, nil
}

func (a *ClaudeAdapter) CompleteStream(ctx context.Context, req CompletionRequest) (ChunkStream, error) {
	resp, err := a.post(ctx, a.toWireRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		return nil, statusError(a.config.ID, resp)
	}

	dec := newBlockDecoder(resp.Body)
	return newHTTPStream(a.config.ID, resp.Body, dec.next, parseClaudeEvent), nil
}

// Cancel is a no-op; the messages API offers no mid-stream cancellation.
func (a *ClaudeAdapter) Cancel(string) {}

// HealthCheck sends a minimal one-token request since the API has no
// dedicated probe endpoint.
func (a *ClaudeAdapter) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	resp, err := a.post(ctx, claudeRequest{
		Model:     a.config.DefaultModel,
		MaxTokens: 1,
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
	})
	if err != nil {
		return HealthStatus{Error: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	latency := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HealthStatus{Latency: latency, Error: "API returned " + resp.Status}
	}
	return HealthStatus{Healthy: true, Latency: latency}
}
