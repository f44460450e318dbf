package chat

import (
	"context"
	"errors"

	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// Domain errors surfaced by repositories and the service. Wrapped storage
// failures keep their cause in the chain.
var (
	ErrSessionNotFound = errors.New("chat: session not found")
	ErrMessageNotFound = errors.New("chat: message not found")
	ErrEmptyContent    = errors.New("chat: message content is empty")
)

// Pagination bounds list queries. A zero Limit means no bound.
type Pagination struct {
	Limit  int
	Offset int
}

// SessionRepository persists sessions. Save is an upsert.
type SessionRepository interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	List(ctx context.Context, p Pagination) ([]Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MessageRepository persists messages. Save is an upsert and touches the
// owning session's updated_at. FindBySession returns messages in creation
// order, oldest first.
type MessageRepository interface {
	Save(ctx context.Context, m Message) error
	Get(ctx context.Context, id uuid.UUID) (Message, error)
	FindBySession(ctx context.Context, sessionID uuid.UUID, p Pagination) ([]Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
}
