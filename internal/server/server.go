// ABOUTME: HTTP API server wiring routes, middleware, and lifecycle
// ABOUTME: Claw routes authenticate with signatures, admin routes with JWTs

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/config"
	"github.com/clawnet/claw-gateway/internal/friends"
	"github.com/clawnet/claw-gateway/internal/inbox"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

// Server is the claw-gateway HTTP API server.
type Server struct {
	store         store.Store
	bus           *bus.Bus
	friends       *friends.Service
	inbox         *inbox.Pipeline
	relationships *relationship.Engine
	trust         *trust.Engine
	verifier      *auth.Verifier
	jwt           *auth.JWTVerifier
	cfg           *config.Config
	logger        *slog.Logger
	router        chi.Router
	webhooks      *WebhookDispatcher
	httpServer    *http.Server
	started       time.Time
}

// Deps bundles the server's collaborators.
type Deps struct {
	Store         store.Store
	Bus           *bus.Bus
	Friends       *friends.Service
	Inbox         *inbox.Pipeline
	Relationships *relationship.Engine
	Trust         *trust.Engine
	Verifier      *auth.Verifier
	JWT           *auth.JWTVerifier
}

// New creates a Server with its routes registered.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:         deps.Store,
		bus:           deps.Bus,
		friends:       deps.Friends,
		inbox:         deps.Inbox,
		relationships: deps.Relationships,
		trust:         deps.Trust,
		verifier:      deps.Verifier,
		jwt:           deps.JWT,
		cfg:           cfg,
		logger:        logger.With("component", "server"),
		webhooks:      NewWebhookDispatcher(cfg.Webhooks, deps.Bus, logger),
		started:       time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(instrumentHTTP)

	r.Get("/api/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	// Registration is the only unauthenticated claw endpoint: the request
	// proves key ownership with a signature over its own body.
	r.Post("/api/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(s.verifier))
		if s.cfg.RateLimit.Enabled {
			r.Use(perClawRateLimit(s.cfg.RateLimit))
		}

		r.Get("/api/me", s.handleMe)
		r.Post("/api/heartbeat", s.handleHeartbeat)
		r.Put("/api/me/encryption-key", s.handleSetEncryptionKey)
		r.Get("/api/claws/{clawID}", s.handleGetClaw)

		r.Get("/api/friends", s.handleListFriends)
		r.Post("/api/friends/request", s.handleFriendRequest)
		r.Post("/api/friends/accept", s.handleFriendAccept)
		r.Delete("/api/friends/{friendID}", s.handleFriendRemove)

		r.Post("/api/messages", s.handleSendMessage)
		r.Get("/api/messages/{messageID}", s.handleGetMessage)
		r.Get("/api/inbox", s.handleGetInbox)
		r.Get("/api/inbox/unread-count", s.handleUnreadCount)
		r.Post("/api/inbox/ack", s.handleAckInbox)
		r.Post("/api/inbox/read", s.handleReadInbox)

		r.Get("/api/relationships", s.handleListRelationships)
		r.Get("/api/relationships/at-risk", s.handleAtRisk)
		r.Get("/api/relationships/{friendID}", s.handleGetRelationship)
		r.Post("/api/relationships/{friendID}/interaction", s.handleInteraction)
		r.Put("/api/relationships/{friendID}/layer", s.handleSetLayer)
		r.Delete("/api/relationships/{friendID}/layer", s.handleClearLayer)

		r.Get("/api/trust/{friendID}", s.handleGetTrust)
		r.Get("/api/trust/{friendID}/domains", s.handleTrustDomains)
		r.Post("/api/trust/{friendID}/signals", s.handleTrustSignal)
		r.Put("/api/trust/{friendID}/honesty", s.handleHonesty)
		r.Post("/api/trust/{friendID}/witness", s.handleWitness)

		r.Get("/api/events", s.handleEvents)
	})

	if s.cfg.Auth.AdminJWTSecret != "" {
		r.Group(func(r chi.Router) {
			r.Use(auth.AdminAuthMiddleware(s.jwt))
			r.Use(auth.RequireAdminHTTP())

			r.Get("/admin/claws", s.handleAdminListClaws)
			r.Get("/admin/stats", s.handleAdminStats)
		})
	}

	s.router = r
}

// Start begins serving and launches the webhook dispatcher. Blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.webhooks.Start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server listening", "addr", s.cfg.Server.HTTPAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the webhook dispatcher.
func (s *Server) Shutdown(ctx context.Context) error {
	s.webhooks.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	})
}
