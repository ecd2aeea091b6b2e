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

	"leadflow/api/internal/app"
	"leadflow/api/internal/authpw"
	"leadflow/api/internal/config"
	"leadflow/api/internal/kanban"
	"leadflow/api/internal/search"
	"leadflow/api/internal/session"
	"leadflow/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	caps, err := store.ResolveCapabilities(ctx, db)
	if err != nil {
		log.Fatalf("capability probe failed: %v", err)
	}
	dataStore := store.NewPostgresStore(db, caps)

	var primary search.Searcher
	var indexer search.Indexer
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		primary = meiliClient
		indexer = meiliClient
		defer meiliClient.Close()
	}
	searchService := search.NewService(primary, search.NewPGSearch(db), indexer, dataStore)

	// Refresh tokens live in Redis when available, otherwise in Postgres.
	var sessions interface {
		SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
		LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
		RevokeRefreshSession(ctx context.Context, tokenHash string) error
	} = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Printf("redis unavailable, falling back to postgres sessions: %v", err)
		} else {
			log.Printf("using redis for refresh token storage")
			defer redisStore.Close()
			sessions = redisStore
		}
	}

	board := kanban.New(dataStore)
	accounts := authpw.NewService(dataStore)

	service := app.New(cfg, dataStore, sessions, board, searchService, accounts)
	if err := service.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Leadflow API listening on %s", cfg.Addr)
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
