package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-kart-insurance/internal/config"
	"go-kart-insurance/internal/container"
	"go-kart-insurance/internal/logger"
)

func main() {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		log.Fatalf("Failed to read env file: %v", err)
	}

	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize dependency injection container
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := container.NewContainer(startCtx, cfg)
	cancelStart()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize container")
	}

	// The backend may come up after the gateway, so an unhealthy probe only warns
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.Service().CheckBackend(probeCtx); err != nil {
		logger.WithError(err).WithField("backend", c.Service().Backend()).Warn("Inference backend not reachable")
	}
	cancelProbe()

	// Create HTTP server with configurable timeouts
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"address":           cfg.ServerAddress(),
			"backend":           cfg.InferenceBackend,
			"archive":           cfg.Archive.Backend,
			"request_timeout":   cfg.RequestTimeout.String(),
			"inference_timeout": cfg.InferenceTimeout.String(),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// In-flight requests are done, so no more archive jobs can arrive
	c.Close()

	logger.Info("Server exited")
}
