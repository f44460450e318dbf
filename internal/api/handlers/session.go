package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// SessionService is the slice of the chat service the session handler uses.
type SessionService interface {
	CreateSession(ctx context.Context, title string, presetID *uuid.UUID) (chat.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (chat.Session, error)
	ListSessions(ctx context.Context, p chat.Pagination) ([]chat.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, title string, presetID *uuid.UUID) (chat.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	SessionMessages(ctx context.Context, id uuid.UUID, p chat.Pagination) ([]chat.Message, error)
}

type SessionHandler struct {
	service SessionService
}

func NewSessionHandler(service SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type sessionRequest struct {
	Title    string  `json:"title"`
	PresetID *string `json:"presetId,omitempty"`
}

func (req sessionRequest) presetUUID() (*uuid.UUID, error) {
	if req.PresetID == nil || *req.PresetID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*req.PresetID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// sessionID parses the {id} path parameter.
func sessionID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	preset, err := req.presetUUID()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid presetId")
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.Title, preset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context(), parsePagination(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	session, err := h.service.GetSession(r.Context(), id)
	if errors.Is(err, chat.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	preset, err := req.presetUUID()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid presetId")
		return
	}

	session, err := h.service.UpdateSession(r.Context(), id, req.Title, preset)
	if errors.Is(err, chat.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	err := h.service.DeleteSession(r.Context(), id)
	if errors.Is(err, chat.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	messages, err := h.service.SessionMessages(r.Context(), id, parsePagination(r))
	if errors.Is(err, chat.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
