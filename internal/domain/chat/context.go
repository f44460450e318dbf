package chat

import "github.com/BegoniaHe/kizuna/internal/infra/llm"

// DefaultMaxContextMessages bounds the history window sent to a provider.
const DefaultMaxContextMessages = 50

// ContextBuilder assembles the ordered prompt for one completion: optional
// system prompt, then the most recent history window, then the current turn.
type ContextBuilder struct {
	SystemPrompt string
	// MaxMessages caps the history window; older entries are silently
	// dropped, never summarized. Zero means DefaultMaxContextMessages.
	MaxMessages int
}

// Build returns the provider message list for current given history.
// Output length is always (1 if system prompt set) + min(len(history),
// MaxMessages) + 1.
func (b ContextBuilder) Build(history []Message, current string) []llm.Message {
	max := b.MaxMessages
	if max <= 0 {
		max = DefaultMaxContextMessages
	}
	if len(history) > max {
		history = history[len(history)-max:]
	}

	out := make([]llm.Message, 0, len(history)+2)
	if b.SystemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: b.SystemPrompt})
	}
	for _, m := range history {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, llm.Message{Role: llm.RoleUser, Content: current})
}

// EstimateTokens is a crude advisory size heuristic. It enforces nothing.
func EstimateTokens(text string) int {
	return len(text)/4 + 4
}
