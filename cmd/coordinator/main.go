// Command coordinator runs the stateless admission and routing service:
// it assigns vnodes to presence-node instances and answers routing
// queries for clients over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace/presence/internal/config"
	"github.com/streamspace/presence/internal/coordinator"
	"github.com/streamspace/presence/internal/directory"
	"github.com/streamspace/presence/internal/apierrors"
	"github.com/streamspace/presence/internal/logger"
	"github.com/streamspace/presence/internal/middleware"
)

const shutdownBudget = 5 * time.Second

func main() {
	cfg := config.LoadCoordinator()
	logger.Initialize(cfg.LogLevel, "presence-coordinator", os.Getenv("ENV") != "production")
	log := logger.GetLogger()

	dir, err := directory.New(directory.Config{Host: cfg.RedisHost, Port: cfg.RedisPort})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to directory store")
	}

	svc := coordinator.New(dir, cfg.VnodeCount)
	if err := svc.Warm(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to warm ring from directory, starting with an empty view")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger())
	router.Use(apierrors.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.NewRateLimiter(20, 40).Middleware())

	coordinator.NewHandler(svc).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("coordinator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("coordinator server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	if err := dir.Close(); err != nil {
		log.Error().Err(err).Msg("error closing directory connection")
	}

	log.Info().Msg("coordinator stopped")
}
