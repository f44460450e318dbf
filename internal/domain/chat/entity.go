// Package chat holds the conversation domain: sessions, messages, prompt
// context assembly, emotion tagging and the completion orchestration that
// turns a user turn into a persisted assistant reply.
package chat

import (
	"time"

	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// Session groups the messages of one conversation.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	PresetID  *uuid.UUID `json:"presetId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Message is one persisted conversation turn. An assistant message is saved
// with its final content only once streaming finishes; its id is allocated
// before streaming starts so callers can correlate events.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens,omitempty"`
	Emotion   Emotion   `json:"emotion,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
