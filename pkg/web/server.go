// Package web serves the wayfinder dashboard: a small JSON API for status,
// history and control, plus a websocket stream of live announcements.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/pkg/announce"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/journal"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
)

// Backend is the pipeline surface the dashboard controls.
type Backend interface {
	Status() pipeline.Status
	SetMode(m scene.Mode)
	Reset()
	AnswerQuestion(ctx context.Context, question string) string
}

// History is the announcement record the dashboard reads.
type History interface {
	Recent(ctx context.Context, n int) ([]journal.Entry, error)
	Counts(ctx context.Context) (map[announce.Status]int64, error)
}

// Config configures the dashboard server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// AllowOrigins is the CORS allow list. Empty allows any origin.
	AllowOrigins string

	// StaticDir serves dashboard assets from disk when set.
	StaticDir string

	// HistoryLimit caps GET /api/announcements.
	HistoryLimit int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default dashboard settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		HistoryLimit:    200,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("web: listen address is required")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("web: history limit must be positive")
	}
	return nil
}

// Server is the dashboard server.
type Server struct {
	app     *fiber.App
	config  Config
	backend Backend
	history History
	hub     *hub.Hub
	logger  *slog.Logger
}

// NewServer creates a dashboard server. history may be nil when no journal
// is configured.
func NewServer(cfg Config, backend Backend, h *hub.Hub, history History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		backend: backend,
		history: history,
		hub:     h,
		logger:  logger.With("component", "web.server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-wayfinder",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
	}))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/announcements", s.handleAnnouncements)
	api.Get("/stats", s.handleStats)
	api.Post("/mode", s.handleMode)
	api.Post("/reset", s.handleReset)
	api.Post("/question", s.handleQuestion)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/announcements", websocket.New(h.Serve))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// The hub loop runs for as long as the server does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Close websocket clients first so Shutdown does not wait on them.
	stopHub()
	if err := s.app.ShutdownWithTimeout(s.config.ShutdownTimeout); err != nil {
		s.logger.Warn("dashboard shutdown", "error", err)
		return err
	}
	s.logger.Info("dashboard stopped")
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
