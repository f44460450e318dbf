package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BegoniaHe/kizuna/internal/infra/llm"
	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// streamBufferSize bounds the per-request event channel. A slow consumer
// stalls the draining goroutine's sends, not the network read itself.
const streamBufferSize = 32

// Event bus topics the service publishes alongside the per-request channel.
const (
	TopicChunk    = "chat.chunk"
	TopicComplete = "chat.complete"
	TopicError    = "chat.error"
)

// StreamEventType discriminates the three event shapes.
type StreamEventType string

const (
	EventChunk StreamEventType = "chunk"
	EventDone  StreamEventType = "done"
	EventError StreamEventType = "error"
)

// StreamEvent is one orchestrator-level event. Any number of chunks precede
// exactly one Done or Error; a cancelled request simply stops.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	SessionID uuid.UUID       `json:"sessionId"`
	MessageID uuid.UUID       `json:"messageId"`

	// Content is the incremental fragment (chunk events only).
	Content string `json:"content,omitempty"`

	// FullContent, Emotion and Usage are set on the Done event.
	FullContent string          `json:"fullContent,omitempty"`
	Emotion     Emotion         `json:"emotion,omitempty"`
	Usage       *llm.TokenUsage `json:"usage,omitempty"`

	// Err is set on the Error event.
	Err string `json:"error,omitempty"`
}

// StreamHandle is the synchronous return of a streaming send: the assistant
// message shell (content empty until Done) plus the read end of the event
// channel. The caller owns draining Events.
type StreamHandle struct {
	AssistantMessage Message
	RequestID        string
	Events           <-chan StreamEvent
}

// Publisher re-emits stream events to out-of-band subscribers (the UI
// bridge). Optional; a nil publisher disables it.
type Publisher interface {
	Publish(topic string, payload any)
}

// Service orchestrates the generate-and-persist lifecycle of a turn.
type Service struct {
	sessions SessionRepository
	messages MessageRepository
	registry *llm.Registry
	builder  ContextBuilder
	bus      Publisher

	mu     sync.Mutex
	active map[string]string // request id -> provider id, for StopGeneration
}

// NewService wires the orchestrator. bus may be nil.
func NewService(sessions SessionRepository, messages MessageRepository, registry *llm.Registry, builder ContextBuilder, bus Publisher) *Service {
	return &Service{
		sessions: sessions,
		messages: messages,
		registry: registry,
		builder:  builder,
		bus:      bus,
		active:   make(map[string]string),
	}
}

// ===== session lifecycle =====

// CreateSession starts a new conversation.
func (s *Service) CreateSession(ctx context.Context, title string, presetID *uuid.UUID) (Session, error) {
	now := time.Now().UTC()
	session := Session{
		ID:        uuid.New(),
		Title:     title,
		PresetID:  presetID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession fetches one session.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessions returns sessions, most recently updated first.
func (s *Service) ListSessions(ctx context.Context, p Pagination) ([]Session, error) {
	return s.sessions.List(ctx, p)
}

// UpdateSession renames a session or rebinds its preset.
func (s *Service) UpdateSession(ctx context.Context, id uuid.UUID, title string, presetID *uuid.UUID) (Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	session.Title = title
	session.PresetID = presetID
	session.UpdatedAt = time.Now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// DeleteSession removes a session and all of its messages.
func (s *Service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := s.messages.DeleteBySession(ctx, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	return s.sessions.Delete(ctx, id)
}

// SessionMessages lists a session's messages, oldest first.
func (s *Service) SessionMessages(ctx context.Context, id uuid.UUID, p Pagination) ([]Message, error) {
	if _, err := s.sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.messages.FindBySession(ctx, id, p)
}

// ===== completion preparation =====

// turn carries everything the two completion modes share once validation
// and context assembly are done.
type turn struct {
	sessionID uuid.UUID
	request   llm.CompletionRequest
	provider  llm.Provider
}

// prepareSend validates a new user turn, persists it and assembles context.
// History is read before the user message is saved so the context window
// holds prior turns plus exactly one copy of the new turn.
func (s *Service) prepareSend(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return turn{}, ErrEmptyContent
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return turn{}, err
	}
	history, err := s.messages.FindBySession(ctx, sessionID, Pagination{})
	if err != nil {
		return turn{}, fmt.Errorf("load history: %w", err)
	}

	userMsg := Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      llm.RoleUser,
		Content:   content,
		Tokens:    EstimateTokens(content),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Save(ctx, userMsg); err != nil {
		return turn{}, fmt.Errorf("save user message: %w", err)
	}

	return s.finishPrepare(sessionID, history, content, cfg)
}

// prepareRegenerate assembles context for re-answering content without
// persisting it again: the trailing assistant run is dropped, then the user
// turn it answered, so content takes that turn's place.
func (s *Service) prepareRegenerate(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return turn{}, ErrEmptyContent
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return turn{}, err
	}
	history, err := s.messages.FindBySession(ctx, sessionID, Pagination{})
	if err != nil {
		return turn{}, fmt.Errorf("load history: %w", err)
	}

	for len(history) > 0 && history[len(history)-1].Role == llm.RoleAssistant {
		history = history[:len(history)-1]
	}
	if len(history) > 0 && history[len(history)-1].Role == llm.RoleUser {
		history = history[:len(history)-1]
	}

	return s.finishPrepare(sessionID, history, content, cfg)
}

func (s *Service) finishPrepare(sessionID uuid.UUID, history []Message, content string, cfg llm.ProviderConfig) (turn, error) {
	provider := s.registry.GetOrCreate(cfg)
	model := cfg.DefaultModel
	if model == "" {
		model = s.registry.DefaultModel(cfg.ID)
	}
	return turn{
		sessionID: sessionID,
		request: llm.CompletionRequest{
			Messages: s.builder.Build(history, content),
			Model:    model,
		},
		provider: provider,
	}, nil
}

func (s *Service) newAssistantMessage(sessionID uuid.UUID) Message {
	return Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      llm.RoleAssistant,
		CreatedAt: time.Now().UTC(),
	}
}

// ===== blocking completions =====

// Send persists content as a user turn and returns the persisted assistant
// reply. Blocking form; retry budget is honored inside the adapter.
func (s *Service) Send(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (Message, error) {
	t, err := s.prepareSend(ctx, sessionID, content, cfg)
	if err != nil {
		return Message{}, err
	}
	return s.completeBlocking(ctx, t)
}

// Regenerate re-answers content in place of the session's trailing turn.
func (s *Service) Regenerate(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (Message, error) {
	t, err := s.prepareRegenerate(ctx, sessionID, content, cfg)
	if err != nil {
		return Message{}, err
	}
	return s.completeBlocking(ctx, t)
}

func (s *Service) completeBlocking(ctx context.Context, t turn) (Message, error) {
	resp, err := t.provider.Complete(ctx, t.request)
	if err != nil {
		return Message{}, err
	}

	assistant := s.newAssistantMessage(t.sessionID)
	assistant.Content = resp.Content
	assistant.Emotion = DetectEmotion(resp.Content)
	assistant.Tokens = resp.Usage.CompletionTokens
	if assistant.Tokens == 0 {
		assistant.Tokens = EstimateTokens(resp.Content)
	}
	if err := s.messages.Save(ctx, assistant); err != nil {
		return Message{}, fmt.Errorf("save assistant message: %w", err)
	}
	return assistant, nil
}

// ===== streaming completions =====

// SendStream is the streaming form of Send. It returns as soon as the
// provider stream opens; content arrives on the handle's event channel and
// the assistant message is persisted before the Done event fires.
func (s *Service) SendStream(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (*StreamHandle, error) {
	t, err := s.prepareSend(ctx, sessionID, content, cfg)
	if err != nil {
		return nil, err
	}
	return s.startStream(ctx, t, cfg.ID)
}

// RegenerateStream is the streaming form of Regenerate.
func (s *Service) RegenerateStream(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (*StreamHandle, error) {
	t, err := s.prepareRegenerate(ctx, sessionID, content, cfg)
	if err != nil {
		return nil, err
	}
	return s.startStream(ctx, t, cfg.ID)
}

func (s *Service) startStream(ctx context.Context, t turn, providerID string) (*StreamHandle, error) {
	requestID := uuid.New().String()
	t.request.RequestID = requestID

	stream, err := t.provider.CompleteStream(ctx, t.request)
	if err != nil {
		return nil, err
	}

	assistant := s.newAssistantMessage(t.sessionID)
	events := make(chan StreamEvent, streamBufferSize)

	s.mu.Lock()
	s.active[requestID] = providerID
	s.mu.Unlock()

	// Persistence must survive the caller abandoning its request context,
	// otherwise a fast client disconnect would lose the finished reply.
	go s.drain(context.WithoutCancel(ctx), stream, assistant, requestID, events)

	return &StreamHandle{
		AssistantMessage: assistant,
		RequestID:        requestID,
		Events:           events,
	}, nil
}

// drain consumes the adapter stream, forwards chunk events, and on natural
// exhaustion persists the assistant message before emitting Done. A
// cancelled request stops silently; neither Done nor Error follows it.
func (s *Service) drain(ctx context.Context, stream llm.ChunkStream, assistant Message, requestID string, events chan<- StreamEvent) {
	defer func() {
		stream.Close() //nolint:errcheck
		s.mu.Lock()
		delete(s.active, requestID)
		s.mu.Unlock()
		close(events)
	}()

	var full strings.Builder
	var usage *llm.TokenUsage

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if llm.IsKind(err, llm.ErrKindCancelled) {
				return
			}
			s.emit(events, StreamEvent{
				Type:      EventError,
				SessionID: assistant.SessionID,
				MessageID: assistant.ID,
				Err:       err.Error(),
			})
			return
		}

		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Content != "" {
			full.WriteString(chunk.Content)
			s.emit(events, StreamEvent{
				Type:      EventChunk,
				SessionID: assistant.SessionID,
				MessageID: assistant.ID,
				Content:   chunk.Content,
			})
		}
	}

	assistant.Content = full.String()
	assistant.Emotion = DetectEmotion(assistant.Content)
	if usage != nil && usage.CompletionTokens > 0 {
		assistant.Tokens = usage.CompletionTokens
	} else {
		assistant.Tokens = EstimateTokens(assistant.Content)
	}

	if err := s.messages.Save(ctx, assistant); err != nil {
		s.emit(events, StreamEvent{
			Type:      EventError,
			SessionID: assistant.SessionID,
			MessageID: assistant.ID,
			Err:       fmt.Sprintf("save assistant message: %v", err),
		})
		return
	}

	s.emit(events, StreamEvent{
		Type:        EventDone,
		SessionID:   assistant.SessionID,
		MessageID:   assistant.ID,
		FullContent: assistant.Content,
		Emotion:     assistant.Emotion,
		Usage:       usage,
	})
}

// emit forwards an event on the bounded channel and mirrors it to the bus.
func (s *Service) emit(events chan<- StreamEvent, ev StreamEvent) {
	events <- ev
	if s.bus == nil {
		return
	}
	switch ev.Type {
	case EventChunk:
		s.bus.Publish(TopicChunk, ev)
	case EventDone:
		s.bus.Publish(TopicComplete, ev)
	case EventError:
		s.bus.Publish(TopicError, ev)
	}
}

// StopGeneration cancels the in-flight stream for requestID. Best effort:
// adapters without cancellation support no-op and unknown ids are ignored.
func (s *Service) StopGeneration(requestID string) {
	s.mu.Lock()
	providerID, ok := s.active[requestID]
	s.mu.Unlock()
	if !ok {
		return
	}
	provider, err := s.registry.Get(providerID)
	if err != nil {
		return
	}
	provider.Cancel(requestID)
}
