package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
	"github.com/BegoniaHe/kizuna/pkg/lipsync"
	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// ChatService is the completion slice of the chat service.
type ChatService interface {
	Send(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (chat.Message, error)
	Regenerate(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (chat.Message, error)
	SendStream(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (*chat.StreamHandle, error)
	RegenerateStream(ctx context.Context, sessionID uuid.UUID, content string, cfg llm.ProviderConfig) (*chat.StreamHandle, error)
	StopGeneration(requestID string)
}

type ChatHandler struct {
	service ChatService
	// defaultProvider serves requests that carry no provider override.
	defaultProvider llm.ProviderConfig
}

func NewChatHandler(service ChatService, defaultProvider llm.ProviderConfig) *ChatHandler {
	return &ChatHandler{service: service, defaultProvider: defaultProvider}
}

type chatRequest struct {
	Content string `json:"content"`
	// Stream defaults to true; set false for a blocking completion.
	Stream   *bool               `json:"stream,omitempty"`
	Provider *llm.ProviderConfig `json:"provider,omitempty"`
}

// streamedEvent is the wire shape of one SSE event: the service event plus
// the phoneme sequence the avatar lip-syncs to, derived here per chunk.
type streamedEvent struct {
	chat.StreamEvent
	Phonemes []string `json:"phonemes,omitempty"`
}

func (h *ChatHandler) providerFor(req chatRequest) llm.ProviderConfig {
	if req.Provider == nil {
		return h.defaultProvider
	}
	cfg := *req.Provider
	if cfg.ID == "" {
		cfg.ID = h.defaultProvider.ID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = h.defaultProvider.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = h.defaultProvider.MaxRetries
	}
	return cfg
}

// Send handles POST /sessions/{id}/chat: streaming by default, blocking
// when the body sets stream=false.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.complete(w, r, h.service.SendStream, h.service.Send)
}

// Regenerate handles POST /sessions/{id}/regenerate.
func (h *ChatHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	h.complete(w, r, h.service.RegenerateStream, h.service.Regenerate)
}

type streamFunc func(context.Context, uuid.UUID, string, llm.ProviderConfig) (*chat.StreamHandle, error)
type blockingFunc func(context.Context, uuid.UUID, string, llm.ProviderConfig) (chat.Message, error)

func (h *ChatHandler) complete(w http.ResponseWriter, r *http.Request, stream streamFunc, blocking blockingFunc) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := h.providerFor(req)

	if req.Stream != nil && !*req.Stream {
		message, err := blocking(r.Context(), id, req.Content, cfg)
		if err != nil {
			writeChatError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, message)
		return
	}

	handle, err := stream(r.Context(), id, req.Content, cfg)
	if err != nil {
		writeChatError(w, err)
		return
	}
	streamEvents(w, handle)
}

// Stop handles POST /chat/{requestId}/stop. Always 202: cancellation is
// best effort and unknown ids are indistinguishable from finished ones.
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "request id is required")
		return
	}
	h.service.StopGeneration(requestID)
	w.WriteHeader(http.StatusAccepted)
}

// streamEvents re-emits orchestrator events as SSE. The first event is a
// synthetic "start" carrying the request id (for Stop) and the assistant
// message id; chunk events carry derived phonemes.
func streamEvents(w http.ResponseWriter, handle *chat.StreamHandle) {
	// The orchestrator blocks on its bounded channel until every event is
	// consumed, and it persists the reply only after the last chunk. Keep
	// draining past any failed write so a disconnecting client cannot wedge
	// the drain goroutine or lose the persisted message.
	defer func() {
		for range handle.Events {
		}
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	start := map[string]string{
		"type":      "start",
		"requestId": handle.RequestID,
		"messageId": handle.AssistantMessage.ID.String(),
	}
	if !writeSSE(bw, flusher, start) {
		return
	}

	for ev := range handle.Events {
		out := streamedEvent{StreamEvent: ev}
		if ev.Type == chat.EventChunk {
			out.Phonemes = lipsync.Strings(lipsync.TextToPhonemes(ev.Content))
		}
		if !writeSSE(bw, flusher, out) {
			return
		}
	}
}

func writeSSE(bw *bufio.Writer, flusher http.Flusher, payload any) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(bw, "data: %s\n\n", b); err != nil {
		return false
	}
	if err := bw.Flush(); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "message content is empty")
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case llm.IsKind(err, llm.ErrKindAuth):
		writeError(w, http.StatusUnauthorized, err.Error())
	case llm.IsKind(err, llm.ErrKindRateLimit):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case llm.IsKind(err, llm.ErrKindProviderMissing):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
