package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flotta/api/internal/app"
	"flotta/api/internal/config"
	"flotta/api/internal/docstore"
	"flotta/api/internal/normalize"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var store docstore.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis document store")
		redisStore, err := docstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Printf("Using PostgreSQL document store")
		db, err := docstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		pgStore := docstore.NewPostgresStore(db)
		if err := pgStore.EnsureTable(ctx); err != nil {
			log.Fatalf("documents table setup failed: %v", err)
		}
		store = pgStore
	}

	schemas := normalize.NewRegistry()
	if strings.TrimSpace(cfg.SchemasPath) != "" {
		loaded, err := normalize.NewRegistryFromFile(cfg.SchemasPath)
		if err != nil {
			log.Fatalf("schema overrides failed: %v", err)
		}
		schemas = loaded
		stop, err := schemas.Watch()
		if err != nil {
			log.Printf("WARNING: schema hot reload unavailable: %v", err)
		} else {
			defer stop()
		}
	}

	service := app.New(cfg, store, schemas)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Periodic re-evaluation of snooze expiry; recomputes visibility only,
	// never writes stored state.
	tickCtx, cancelTick := context.WithCancel(ctx)
	defer cancelTick()
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				service.RefreshVisibility(tickCtx)
			case <-tickCtx.Done():
				return
			}
		}
	}()

	go func() {
		log.Printf("Flotta API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
