package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"anoa.com/lostfound/internal/bootstrap"
	"anoa.com/lostfound/internal/config"
	"anoa.com/lostfound/internal/server"
	"anoa.com/lostfound/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := database.Connect()
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedAdminUser(db); err != nil {
			log.Fatalf("failed to seed admin user: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("⚠️ redis unavailable, continuing without it: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	srv := server.NewServer(ctx, cfg, db, redisClient)
	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exited with error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	log.Println("Server stopped")
}
