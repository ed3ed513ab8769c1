// Command node runs a Presence Node: a WebSocket-facing process that holds
// live user sessions for its assigned vnodes, keeps the shared directory
// and event bus in sync with that view, and forwards presence transitions
// published by other nodes to the locally connected client of the same
// user.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace/presence/internal/apierrors"
	"github.com/streamspace/presence/internal/auth"
	"github.com/streamspace/presence/internal/bus"
	"github.com/streamspace/presence/internal/config"
	"github.com/streamspace/presence/internal/directory"
	"github.com/streamspace/presence/internal/logger"
	"github.com/streamspace/presence/internal/middleware"
	"github.com/streamspace/presence/internal/presence"
)

const (
	shutdownBudget = 5 * time.Second
	ownershipTTL   = 60 * time.Second
	pingInterval   = 30 * time.Second
)

func main() {
	cfg, err := config.LoadNode()
	if err != nil {
		panic(err) // invariant violation at startup: fail fast before logging is even configured
	}

	logger.Initialize(cfg.LogLevel, "presence-node", os.Getenv("ENV") != "production")
	log := logger.GetLogger()

	dir, err := directory.New(directory.Config{Host: cfg.RedisHost, Port: cfg.RedisPort})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to directory store")
	}

	producer := bus.NewProducer(bus.Config{Brokers: cfg.KafkaBrokers})
	consumer := bus.NewConsumer(bus.Config{Brokers: cfg.KafkaBrokers}, cfg.NodeID)

	hub := presence.New(cfg.NodeID, cfg.VnodeCount, cfg.AssignedVnodes, dir, producer, pingInterval)
	validator := auth.NewValidator(auth.Config{SecretKey: cfg.JWTSecret})

	// One heartbeat runs synchronously before the acceptor starts, per the
	// heartbeat protocol: a node must claim its vnodes before taking traffic.
	hub.Heartbeat(context.Background(), ownershipTTL)

	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	go hub.ConsumeLoop(consumeCtx, consumer)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	go hub.HeartbeatLoop(heartbeatCtx, cfg.HeartbeatInterval, ownershipTTL)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger())
	router.Use(apierrors.Recovery())
	router.Use(middleware.SecurityHeaders())

	presence.NewHandler(hub, validator).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.WSPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.WSPort).Ints("assigned_vnodes", cfg.AssignedVnodes).Msg("presence node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("presence node server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	cancelHeartbeat()
	hub.CloseAll()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	cancelConsume()
	if err := consumer.Close(); err != nil {
		log.Error().Err(err).Msg("error closing bus consumer")
	}
	if err := producer.Close(); err != nil {
		log.Error().Err(err).Msg("error closing bus producer")
	}
	if err := dir.Close(); err != nil {
		log.Error().Err(err).Msg("error closing directory connection")
	}

	log.Info().Msg("presence node stopped")
}
