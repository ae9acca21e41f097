package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"eduhub-realtime/config"
	"eduhub-realtime/internal/relay"
	"eduhub-realtime/pkg/jwt"
	"eduhub-realtime/pkg/log"
	"eduhub-realtime/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if cfg.JWT.SecretKey == "" {
		fmt.Println("JWT_SECRET_KEY is required")
		os.Exit(1)
	}

	logger := log.Init(log.ZapConfig{
		Level:        cfg.Logger.Level,
		Mode:         cfg.Logger.Mode,
		Encoding:     cfg.Logger.Encoding,
		ColorEnabled: cfg.Logger.ColorEnabled,
	})

	ctx := context.Background()
	logger.Info(ctx, "Starting realtime relay...")

	jwtManager := jwt.NewManager(jwt.Config{
		SecretKey: cfg.JWT.SecretKey,
		Issuer:    cfg.JWT.Issuer,
	})

	hub := relay.NewHub(logger, cfg.Relay.MaxConnections)
	go hub.Run()
	logger.Info(ctx, "Relay hub started")

	// Optional Redis bridge for frames published by backend services.
	var bridge *relay.Bridge
	if cfg.Redis.Host != "" {
		client, err := redis.Connect(redis.Config{
			Addr:     cfg.Redis.Host,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			UseTLS:   cfg.Redis.UseTLS,
		})
		if err != nil {
			logger.Errorf(ctx, "Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		defer client.Close()

		bridge = relay.NewBridge(client, hub, logger)
		if err := bridge.Start(); err != nil {
			logger.Errorf(ctx, "Failed to start Redis bridge: %v", err)
			os.Exit(1)
		}
	}

	handler := relay.NewHandler(hub, jwtManager, logger, relay.SessionConfig{
		PongWait:       cfg.Relay.PongWait,
		PingPeriod:     cfg.Relay.PingInterval,
		WriteWait:      cfg.Relay.WriteWait,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
	})

	if cfg.Relay.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Relay.Host, cfg.Relay.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof(ctx, "Relay listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf(ctx, "HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "HTTP server shutdown error: %v", err)
	}
	if bridge != nil {
		bridge.Stop()
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "Hub shutdown error: %v", err)
	}
	logger.Info(ctx, "Relay stopped")
}
