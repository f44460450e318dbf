package handlers

import (
	"bufio"
	"net/http"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/eventbus"
)

// EventSource is the subscription slice of the event bus.
type EventSource interface {
	Subscribe(topic string) <-chan eventbus.Event
	Unsubscribe(topic string, ch <-chan eventbus.Event)
}

// EventsHandler exposes the out-of-band event feed: every chat completion
// event, regardless of which request produced it. Clients that hold a
// request's own SSE stream don't need this.
type EventsHandler struct {
	source EventSource
}

func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{source: source}
}

// eventFrame is the wire shape of one feed entry.
type eventFrame struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Stream handles GET /events: an SSE feed of chat.chunk, chat.complete and
// chat.error events until the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	chunks := h.source.Subscribe(chat.TopicChunk)
	completes := h.source.Subscribe(chat.TopicComplete)
	failures := h.source.Subscribe(chat.TopicError)
	defer func() {
		h.source.Unsubscribe(chat.TopicChunk, chunks)
		h.source.Unsubscribe(chat.TopicComplete, completes)
		h.source.Unsubscribe(chat.TopicError, failures)
	}()

	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	bw := bufio.NewWriter(w)
	for {
		var ev eventbus.Event
		select {
		case ev = <-chunks:
		case ev = <-completes:
		case ev = <-failures:
		case <-r.Context().Done():
			return
		}
		if !writeSSE(bw, flusher, eventFrame{Topic: ev.Topic, Payload: ev.Payload}) {
			return
		}
	}
}
