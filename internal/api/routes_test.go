package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/eventbus"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
)

func newWiredRouter(t *testing.T) http.Handler {
	t.Helper()
	sessions, messages := chat.NewMemoryRepositories()
	registry := llm.NewRegistry()
	bus := eventbus.New()
	svc := chat.NewService(sessions, messages, registry, chat.ContextBuilder{}, bus)
	cfg := llm.DefaultProviderConfig()
	cfg.ID = "default"
	cfg.Kind = llm.KindCustom
	return NewRouter(svc, registry, cfg, bus)
}

func TestNewRouterHealthEndpoint(t *testing.T) {
	t.Parallel()
	router := newWiredRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %q; want it to contain ok", w.Body.String())
	}
}

func TestNewRouterRegistersAPIRoutes(t *testing.T) {
	t.Parallel()
	router := newWiredRouter(t)

	// A wired route answers with a domain status, never chi's 404/405.
	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/sessions", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/not-a-uuid", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/providers", http.StatusOK},
		{http.MethodGet, "/api/v1/providers/ghost/health", http.StatusNotFound},
		{http.MethodPost, "/api/v1/chat/req-1/stop", http.StatusAccepted},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s %s status = %d; want %d", tc.method, tc.path, w.Code, tc.want)
		}
	}
}
