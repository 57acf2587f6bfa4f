package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/learnhub/learnhub-wallet/internal/config"
	"github.com/learnhub/learnhub-wallet/internal/payments"
	"github.com/learnhub/learnhub-wallet/internal/routes"
)

// Server wraps the Fiber application and its background reconciler.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	reconciler *payments.Reconciler
	logger     *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	reconciler, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, reconciler: reconciler, logger: logger}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Reconcile runs the payment reconciler until ctx is cancelled.
func (s *Server) Reconcile(ctx context.Context) {
	if err := s.reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("reconciler stopped", "error", err)
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
