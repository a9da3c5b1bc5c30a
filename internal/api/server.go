package api

import (
	"fmt"
	"net/http"

	"github.com/docassist/docassist/internal/chat"
	"github.com/docassist/docassist/internal/knowledge"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/session"
	"github.com/docassist/docassist/internal/store"
)

// Config carries the server dependencies and settings.
type Config struct {
	Logger       log.Logger
	Store        *store.Store
	Provisioner  *session.Provisioner
	Synchronizer *knowledge.Synchronizer
	Orchestrator *chat.Orchestrator

	AuthToken  string
	TrustProxy bool

	RateLimitEnabled bool
	RateLimitPerSec  float64
	RateLimitBurst   int

	Limits Limits

	Version string
	Model   string
}

// Server is the HTTP front of the service.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer wires routes and the middleware chain.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Provisioner == nil || cfg.Synchronizer == nil || cfg.Orchestrator == nil {
		return nil, fmt.Errorf("provisioner, synchronizer and orchestrator are required")
	}

	h := &docsHandler{
		provisioner: cfg.Provisioner,
		sync:        cfg.Synchronizer,
		chat:        cfg.Orchestrator,
		store:       cfg.Store,
		limits:      cfg.Limits,
		logger:      cfg.Logger,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /v2/info", infoHandler(cfg.Version, cfg.Model, cfg.Logger))
	apiMux.HandleFunc("POST /v2/init", h.init)
	apiMux.HandleFunc("POST /v2/sync-doc", h.syncDoc)
	apiMux.HandleFunc("POST /v2/sync-tab", h.syncTab)
	apiMux.HandleFunc("POST /v2/upload-file", h.uploadFile)
	apiMux.HandleFunc("GET /v2/list-files", h.listFiles)
	apiMux.HandleFunc("GET /v2/reconcile", h.reconcile)
	apiMux.HandleFunc("POST /v2/chat", h.chatHandler)
	apiMux.HandleFunc("POST /v2/reset-doc", h.resetDoc)
	apiMux.HandleFunc("POST /v2/cleanup", h.cleanup)
	apiMux.HandleFunc("POST /docs-agent", h.docsAgent)

	var handler http.Handler = apiMux
	if cfg.RateLimitEnabled {
		rl := newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
		handler = rateLimitMiddleware(rl, cfg.TrustProxy, cfg.Logger)(handler)
	}
	handler = authMiddleware(cfg.AuthToken, cfg.Logger)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	// Health stays outside the middleware chain so probes bypass
	// auth and rate limiting.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(cfg.Store, cfg.Logger))
	mux.Handle("/", handler)

	return &Server{mux: mux, logger: cfg.Logger}, nil
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}
