package server

import (
	"context"
	"fmt"

	"correio-ftp/internal/core/config"
	"correio-ftp/internal/core/logger"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"

	_ "correio-ftp/docs/swagger"
)

// Server holds the Fiber application serving the tracking API.
type Server struct {
	// App is the main Fiber application instance.
	App *fiber.App
	// cfg holds the HTTP settings.
	cfg config.HTTPConfig
}

// New creates a new Server instance with configured middleware.
func New(cfg config.HTTPConfig) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "correio-ftp",
	})

	app.Use(requestid.New(requestid.Config{
		Header: "X-Ray-ID",
	}))

	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logger.Named("http"),
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)

	return &Server{
		App: app,
		cfg: cfg,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	logger.Get().Info("Starting tracking API", zap.String("address", addr))
	return s.App.Listen(addr)
}

// Shutdown stops the HTTP server, waiting for open requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}
