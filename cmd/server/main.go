package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"correio-ftp/internal/core/cache"
	"correio-ftp/internal/core/config"
	"correio-ftp/internal/core/logger"
	"correio-ftp/internal/core/server"
	ftphandler "correio-ftp/internal/features/ftp/handler"
	"correio-ftp/internal/features/shipments/adapters"
	shipmenthandler "correio-ftp/internal/features/shipments/handler"
	"correio-ftp/internal/features/shipments/ports"
	"correio-ftp/internal/features/shipments/service"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// @title Correio FTP Tracking API
// @version 1.0
// @description Read-only view of the shipments registered by the FTP server.
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	configPath := pflag.String("config", ".", "directory holding the .env file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Application starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.String("storage_dir", cfg.Storage.Dir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Shipment Store and Registry
	store, err := adapters.NewDiskStore(cfg.Storage.Dir)
	if err != nil {
		l.Fatal("Failed to prepare storage", zap.Error(err))
	}

	var publisher ports.StatusPublisher
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisAdapter(cfg.Redis.URL)
		if err != nil {
			l.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			l.Warn("Redis unreachable, status mirror may lag", zap.Error(err))
		}
		publisher = adapters.NewCachePublisher(redisCache)
		l.Info("Status mirror enabled")
	}

	registry := service.NewRegistry(store, publisher)
	loaded, err := registry.Load(ctx)
	if err != nil {
		l.Fatal("Failed to load shipments", zap.Error(err))
	}
	l.Info("Shipments loaded", zap.Int("count", loaded))

	// Initialize FTP Acceptor
	sessions := ftphandler.NewSessionHandler(registry, ftphandler.Config{
		PassiveHost: cfg.FTP.PassiveHost,
		DataTimeout: cfg.FTP.DataTimeout,
		IdleTimeout: cfg.FTP.IdleTimeout,
	})
	acceptor := server.NewAcceptor(sessions, cfg.FTP.MaxSessions)
	if err := acceptor.Listen(cfg.FTP.Addr()); err != nil {
		l.Fatal("Failed to bind control port", zap.String("address", cfg.FTP.Addr()), zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		if err := acceptor.Serve(); err != nil && !errors.Is(err, server.ErrAcceptorClosed) {
			errCh <- err
		}
	}()

	// Initialize Tracking API
	var api *server.Server
	if cfg.HTTP.Port > 0 {
		api = server.New(cfg.HTTP)
		shipmenthandler.NewShipmentHandler(registry).Register(api.App)
		go func() {
			if err := api.Run(); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		l.Info("Shutdown requested")
	case err := <-errCh:
		l.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.FTP.ShutdownGrace)
	defer cancel()

	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			l.Warn("Tracking API shutdown incomplete", zap.Error(err))
		}
	}
	if err := acceptor.Shutdown(shutdownCtx); err != nil {
		l.Warn("Sessions closed after grace period", zap.Error(err))
	}
	l.Info("Server stopped")
}
