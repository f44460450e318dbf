// Package llm defines the model-agnostic LLM provider abstraction.
// Adapters (OpenAI-compatible, Claude, Ollama, dynamic) implement the
// Provider interface so the application is never coupled to a specific
// vendor wire format.
package llm

import "time"

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderKind selects the wire protocol an adapter speaks.
type ProviderKind string

const (
	KindOpenAI ProviderKind = "openai"
	KindClaude ProviderKind = "claude"
	KindOllama ProviderKind = "ollama"
	// KindCustom is served by the OpenAI-compatible adapter.
	KindCustom ProviderKind = "custom"
)

// ProviderConfig identifies and configures one provider endpoint.
// Immutable value; the registry caches adapters by ID.
type ProviderConfig struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Kind         ProviderKind  `json:"kind" yaml:"kind"`
	BaseURL      string        `json:"baseUrl" yaml:"baseUrl"`
	APIKey       string        `json:"apiKey" yaml:"apiKey"`
	DefaultModel string        `json:"defaultModel" yaml:"defaultModel"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries   int           `json:"maxRetries" yaml:"maxRetries"`
}

// DefaultProviderConfig returns an OpenAI-shaped config with the defaults
// applied to any provider the user has not fully specified.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Kind:         KindOpenAI,
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-3.5-turbo",
		Timeout:      60 * time.Second,
		MaxRetries:   3,
	}
}

// CompletionRequest is the uniform input for both blocking and streaming
// completions. Messages is never empty; the last entry is the turn being
// asked of the provider.
type CompletionRequest struct {
	Messages      []Message
	Model         string
	MaxTokens     int     // 0 means provider default
	Temperature   float32 // 0 means provider default
	StopSequences []string
	// RequestID correlates a stream with a later Cancel call. Optional.
	RequestID string
}

// FinishReason explains why a completion stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishFunctionCall  FinishReason = "function_call"
)

// TokenUsage is the prompt/completion/total token triple.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CompletionResponse is the output of a blocking completion.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finishReason"`
	Usage        TokenUsage   `json:"usage"`
}

// StreamChunk is one incremental fragment of a streamed completion.
// FinishReason and Usage are only populated on the terminal chunk.
type StreamChunk struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finishReason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// ModelInfo describes one model a provider can serve.
type ModelInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ContextLength     int    `json:"contextLength"`
	SupportsVision    bool   `json:"supportsVision"`
	SupportsFunctions bool   `json:"supportsFunctions"`
}

// ProviderInfo is an adapter's static self-description.
type ProviderInfo struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Kind   ProviderKind `json:"kind"`
	Models []ModelInfo  `json:"models"`
}

// HealthStatus reports provider reachability. A failed probe is captured
// here rather than returned as an error.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}
