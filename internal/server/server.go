// Package server provides HTTP server initialization and lifecycle management
// for the fieldmemo API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/ingest"
	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/web/handlers"
)

// Services are the long-lived objects the HTTP API is built on.
type Services struct {
	Store    storage.Store
	Resolver *resolver.Resolver
	Writer   *ingest.Writer
	Hub      *handlers.WebSocketHub
}

// NewServices wires a resolver, WebSocket hub and ingestion writer over store.
// The hub is not running yet; Start runs it.
func NewServices(cfg *config.Config, store storage.Store) *Services {
	res := resolver.New(store)
	hub := handlers.NewWebSocketHub(
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	)
	writer := ingest.NewWriter(store, res,
		ingest.WithNotifier(hub),
		ingest.WithBreaker(ingest.BreakerConfig{
			MaxFailures: uint32(max(cfg.Ingest.BreakerMaxFailures, 0)),
			Timeout:     cfg.Ingest.BreakerTimeout,
		}),
	)
	return &Services{Store: store, Resolver: res, Writer: writer, Hub: hub}
}

// RegistryChanged rebuilds the resolver after another process changed the
// component registry, then tells WebSocket clients.
func (s *Services) RegistryChanged(ctx context.Context, action string) {
	if err := s.Resolver.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("server: resolver refresh failed after external registry change")
	}
	s.Hub.Broadcast(handlers.ComponentsChangedEvent{
		Type:      handlers.EventComponentsChanged,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
}

// NewHandler builds the routed, middleware-wrapped HTTP handler.
func NewHandler(cfg *config.Config, svc *Services) http.Handler {
	mux := http.NewServeMux()

	memoHandlers := handlers.NewMemoHandlers(svc.Writer, svc.Store)
	componentHandlers := handlers.NewComponentHandlers(svc.Store, svc.Resolver, svc.Hub)
	actionItemHandlers := handlers.NewActionItemHandlers(svc.Store)
	healthHandler := handlers.NewHealthHandler(svc.Store, svc.Writer)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/memos", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			memoHandlers.ListMemos(w, r)
		case http.MethodPost:
			memoHandlers.CreateMemo(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/memos/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			memoHandlers.GetMemo(w, r)
		case http.MethodPut:
			memoHandlers.UpdateMemo(w, r)
		case http.MethodDelete:
			memoHandlers.DeleteMemo(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/engineers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			memoHandlers.ListEngineers(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/components", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			componentHandlers.ListComponents(w, r)
		case http.MethodPost:
			componentHandlers.CreateComponent(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/components/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			componentHandlers.GetComponent(w, r)
		case http.MethodPut:
			componentHandlers.UpdateComponent(w, r)
		case http.MethodDelete:
			componentHandlers.DeleteComponent(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/action-items", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			actionItemHandlers.ListActionItems(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/action-items/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			actionItemHandlers.UpdateActionItem(w, r)
		case http.MethodDelete:
			actionItemHandlers.DeleteActionItem(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Health endpoint, no auth required
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		healthHandler.Health(w, r)
	})

	mux.Handle("/api/", handlers.RequestLogger(handlers.RequireAuth(apiMux, cfg)))

	// WebSocket endpoint (origin validation handles security)
	mux.Handle("/ws", svc.Hub)

	rps, burst := cfg.RateLimit.RPS, cfg.RateLimit.Burst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	rateLimiter := handlers.NewRateLimiter(rps, burst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return handlers.SecurityHeaders(handler)
}

// Start initializes and starts the HTTP server. It returns the address being
// listened on (useful for testing with port 0) and the wired services. The
// server shuts down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, store storage.Store) (string, *Services, error) {
	svc := NewServices(cfg, store)
	if err := svc.Resolver.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("server: component registry unavailable at startup")
	}
	go svc.Hub.Run()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      NewHandler(cfg, svc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		svc.Hub.Stop()
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", cfg.Addr(), err)
	}
	actualAddr := listener.Addr().String()
	log.Info().Str("addr", actualAddr).Msg("server: listening")

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server: serve failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server: shutdown failed")
		}
		svc.Hub.Stop()
	}()

	return actualAddr, svc, nil
}
