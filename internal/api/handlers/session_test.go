package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// offlineProvider resolves to the mock adapter: a credential-requiring kind
// with no key configured.
func offlineProvider() llm.ProviderConfig {
	cfg := llm.DefaultProviderConfig()
	cfg.ID = "default"
	cfg.Kind = llm.KindCustom
	cfg.BaseURL = "http://127.0.0.1:1"
	return cfg
}

// newTestRouter wires the handlers against an in-memory service, mirroring
// the production route layout for the paths under test.
func newTestRouter(t *testing.T) (http.Handler, *chat.Service) {
	t.Helper()
	sessions, messages := chat.NewMemoryRepositories()
	svc := chat.NewService(sessions, messages, llm.NewRegistry(), chat.ContextBuilder{}, nil)

	sessionHandler := NewSessionHandler(svc)
	chatHandler := NewChatHandler(svc, offlineProvider())

	r := chi.NewRouter()
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessionHandler.Create)
		r.Get("/", sessionHandler.List)
		r.Get("/{id}", sessionHandler.Get)
		r.Put("/{id}", sessionHandler.Update)
		r.Delete("/{id}", sessionHandler.Delete)
		r.Get("/{id}/messages", sessionHandler.Messages)
		r.Post("/{id}/chat", chatHandler.Send)
		r.Post("/{id}/regenerate", chatHandler.Regenerate)
	})
	r.Post("/chat/{requestId}/stop", chatHandler.Stop)
	return r, svc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSessionHandlerCreate(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]any{"title": "First chat"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; want %d body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var got chat.Session
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Title != "First chat" {
		t.Errorf("title = %q; want %q", got.Title, "First chat")
	}
	if got.ID.IsNil() {
		t.Error("response session has no id")
	}
}

func TestSessionHandlerCreateValidation(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{}`},
		{"invalid presetId", `{"title":"x","presetId":"not-a-uuid"}`},
		{"malformed json", `{"title":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestSessionHandlerGet(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t)

	created, err := svc.CreateSession(context.Background(), "Chat", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/sessions/"+created.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}

	t.Run("unknown id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/sessions/"+uuid.New().String(), nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d; want %d", w.Code, http.StatusNotFound)
		}
	})
	t.Run("malformed id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/sessions/nope", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestSessionHandlerUpdate(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t)

	created, err := svc.CreateSession(context.Background(), "Old title", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	w := doJSON(t, router, http.MethodPut, "/sessions/"+created.ID.String(), map[string]any{"title": "New title"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var got chat.Session
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Title != "New title" {
		t.Errorf("title = %q; want %q", got.Title, "New title")
	}

	w = doJSON(t, router, http.MethodPut, "/sessions/"+uuid.New().String(), map[string]any{"title": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d; want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessionHandlerList(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("empty list body = %q; want %q", body, "[]\n")
	}

	for _, title := range []string{"a", "b", "c"} {
		if _, err := svc.CreateSession(context.Background(), title, nil); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	w = doJSON(t, router, http.MethodGet, "/sessions?limit=2", nil)
	var got []chat.Session
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
}

func TestSessionHandlerDelete(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t)

	created, err := svc.CreateSession(context.Background(), "Chat", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	w := doJSON(t, router, http.MethodDelete, "/sessions/"+created.ID.String(), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusNoContent)
	}

	w = doJSON(t, router, http.MethodGet, "/sessions/"+created.ID.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d; want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessionHandlerMessages(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t)

	created, err := svc.CreateSession(context.Background(), "Chat", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.Send(context.Background(), created.ID, "Hello", offlineProvider()); err != nil {
		t.Fatalf("send: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/sessions/"+created.ID.String()+"/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var got []chat.Message
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2 (user + assistant)", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "assistant" {
		t.Errorf("roles = %q, %q; want user, assistant", got[0].Role, got[1].Role)
	}

	w = doJSON(t, router, http.MethodGet, "/sessions/"+uuid.New().String()+"/messages", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d; want %d", w.Code, http.StatusNotFound)
	}
}
