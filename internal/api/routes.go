package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BegoniaHe/kizuna/internal/api/handlers"
	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/eventbus"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
	"github.com/BegoniaHe/kizuna/internal/version"
)

// NewRouter creates and configures a chi router with all routes. bus may be
// nil, in which case the event feed is not mounted.
func NewRouter(chatSvc *chat.Service, registry *llm.Registry, defaultProvider llm.ProviderConfig, bus *eventbus.Bus) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check, used by desktop shells and probes to detect readiness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","version":"` + version.Version + `"}`)) //nolint:errcheck
	})

	sessionHandler := handlers.NewSessionHandler(chatSvc)
	chatHandler := handlers.NewChatHandler(chatSvc, defaultProvider)
	providerHandler := handlers.NewProviderHandler(registry)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)                 // POST /api/v1/sessions
			r.Get("/", sessionHandler.List)                    // GET /api/v1/sessions
			r.Get("/{id}", sessionHandler.Get)                 // GET /api/v1/sessions/{id}
			r.Put("/{id}", sessionHandler.Update)              // PUT /api/v1/sessions/{id}
			r.Delete("/{id}", sessionHandler.Delete)           // DELETE /api/v1/sessions/{id}
			r.Get("/{id}/messages", sessionHandler.Messages)   // GET /api/v1/sessions/{id}/messages
			r.Post("/{id}/chat", chatHandler.Send)             // POST /api/v1/sessions/{id}/chat
			r.Post("/{id}/regenerate", chatHandler.Regenerate) // POST /api/v1/sessions/{id}/regenerate
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/{requestId}/stop", chatHandler.Stop) // POST /api/v1/chat/{requestId}/stop
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providerHandler.List)              // GET /api/v1/providers
			r.Post("/", providerHandler.Register)         // POST /api/v1/providers
			r.Delete("/{id}", providerHandler.Unregister) // DELETE /api/v1/providers/{id}
			r.Get("/{id}/models", providerHandler.Models) // GET /api/v1/providers/{id}/models
			r.Get("/{id}/health", providerHandler.Health) // GET /api/v1/providers/{id}/health
		})

		r.Route("/dynamic", func(r chi.Router) {
			r.Post("/complete", providerHandler.DynamicComplete) // POST /api/v1/dynamic/complete
		})

		if bus != nil {
			eventsHandler := handlers.NewEventsHandler(bus)
			r.Get("/events", eventsHandler.Stream) // GET /api/v1/events
		}
	})

	return r
}
