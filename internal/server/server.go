package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/home"
	"github.com/pagelift/pagelift/internal/mistral"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/sandbox"
	"github.com/pagelift/pagelift/internal/server/endpoints"
	"github.com/pagelift/pagelift/internal/svcctx"
	"github.com/pagelift/pagelift/internal/tool"
)

// Server is the pagelift HTTP server. It binds the ocr_document tool to
// HTTP routes and injects core services into request contexts.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the pagelift home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
	// OCRService overrides the remote OCR client (used in tests)
	OCRService ocr.Service
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}

	appCfg := cfg.ConfigManager.Get()

	// Sandbox root: configured allowed_dir or the home outputs directory.
	allowedDir := appCfg.Sandbox.AllowedDir
	if allowedDir == "" {
		allowedDir = cfg.Home.OutputsPath()
	}
	policy, err := sandbox.NewPolicy(allowedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to build sandbox policy: %w", err)
	}

	service := cfg.OCRService
	if service == nil {
		service = mistral.NewClient(mistral.Config{
			APIKey:     appCfg.ResolvedAPIKey(),
			BaseURL:    appCfg.Mistral.BaseURL,
			Timeout:    time.Duration(appCfg.Mistral.TimeoutSeconds) * time.Second,
			MaxRetries: appCfg.Mistral.MaxRetries,
		})
	}

	ocrTool, err := tool.New(policy, ocr.NewOrchestrator(service, cfg.Logger), cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ocr tool: %w", err)
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
		services: &svcctx.Services{
			ConfigManager: cfg.ConfigManager,
			Home:          cfg.Home,
			Policy:        policy,
			OCRTool:       ocrTool,
			Logger:        cfg.Logger,
		},
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // OCR calls block on the provider
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// withServices injects core services into each request context.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := svcctx.WithServices(r.Context(), s.services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start starts the HTTP server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the fully-wired HTTP handler (used in tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
