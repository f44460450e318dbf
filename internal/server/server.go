// Package server owns HTTP server initialization and lifecycle.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/BegoniaHe/kizuna/internal/api"
	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/eventbus"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
	// WriteTimeout stays zero: SSE completions hold the response open
	// longer than any fixed write deadline.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default HTTP server configuration. The server binds
// loopback only; it is a local backend, not a public service.
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:8970",
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// Server wraps the HTTP server and the storage handle it owns.
type Server struct {
	config Config
	http   *http.Server
	// store is closed on shutdown; nil when running on the in-memory store.
	store io.Closer
}

// NewServer builds the router from the wired services and prepares the
// HTTP server around it.
func NewServer(chatSvc *chat.Service, registry *llm.Registry, provider llm.ProviderConfig, bus *eventbus.Bus, store io.Closer, config Config) *Server {
	router := api.NewRouter(chatSvc, registry, provider, bus)

	httpServer := &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		config: config,
		http:   httpServer,
		store:  store,
	}
}

// Start starts the HTTP server and blocks until it stops. Request contexts
// descend from ctx, so cancelling it ends in-flight request handling.
func (s *Server) Start(ctx context.Context) error {
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }
	fmt.Printf("Starting HTTP server on %s\n", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	fmt.Println("Shutting down server...")

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("store close error: %w", err)
		}
	}

	fmt.Println("Server shutdown complete")
	return nil
}
