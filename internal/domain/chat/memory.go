package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// MemorySessionRepository is a map-backed SessionRepository used in tests
// and in no-persistence mode.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
}

// MemoryMessageRepository is the matching MessageRepository. It holds the
// session repository so message writes can touch the owning session.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]Message
	seq      map[uuid.UUID]int // insertion order, FindBySession tiebreaker
	nextSeq  int

	sessions *MemorySessionRepository
}

// NewMemoryRepositories creates a linked in-memory repository pair.
func NewMemoryRepositories() (*MemorySessionRepository, *MemoryMessageRepository) {
	sessions := &MemorySessionRepository{sessions: make(map[uuid.UUID]Session)}
	messages := &MemoryMessageRepository{
		messages: make(map[uuid.UUID]Message),
		seq:      make(map[uuid.UUID]int),
		sessions: sessions,
	}
	return sessions, messages
}

func (r *MemorySessionRepository) Save(_ context.Context, s Session) error {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, id uuid.UUID) (Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *MemorySessionRepository) List(_ context.Context, p Pagination) ([]Session, error) {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	// Most recently updated first, the order the session list shows.
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return paginate(out, p), nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) touch(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.UpdatedAt = at
		r.sessions[id] = s
	}
	r.mu.Unlock()
}

func (r *MemoryMessageRepository) Save(_ context.Context, m Message) error {
	r.mu.Lock()
	if _, ok := r.seq[m.ID]; !ok {
		r.seq[m.ID] = r.nextSeq
		r.nextSeq++
	}
	r.messages[m.ID] = m
	r.mu.Unlock()

	if r.sessions != nil {
		r.sessions.touch(m.SessionID, time.Now())
	}
	return nil
}

func (r *MemoryMessageRepository) Get(_ context.Context, id uuid.UUID) (Message, error) {
	r.mu.RLock()
	m, ok := r.messages[id]
	r.mu.RUnlock()
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	return m, nil
}

func (r *MemoryMessageRepository) FindBySession(_ context.Context, sessionID uuid.UUID, p Pagination) ([]Message, error) {
	r.mu.RLock()
	out := make([]Message, 0)
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return r.seq[out[i].ID] < r.seq[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	r.mu.RUnlock()
	return paginate(out, p), nil
}

func (r *MemoryMessageRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return ErrMessageNotFound
	}
	delete(r.messages, id)
	delete(r.seq, id)
	return nil
}

func (r *MemoryMessageRepository) DeleteBySession(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	for id, m := range r.messages {
		if m.SessionID == sessionID {
			delete(r.messages, id)
			delete(r.seq, id)
		}
	}
	r.mu.Unlock()
	return nil
}

func paginate[T any](items []T, p Pagination) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return nil
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
