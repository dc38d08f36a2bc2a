package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"meetup-app/internal/auth"
	"meetup-app/internal/cache"
	"meetup-app/internal/config"
	"meetup-app/internal/database"
	"meetup-app/internal/handlers"
	"meetup-app/internal/realtime"
	"meetup-app/internal/services"
	"meetup-app/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	// Initialize ephemeral store
	store, err := cache.NewRedisStore(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
	if err != nil {
		logger.Fatal("Failed to connect to redis: %v", err)
	}

	// Initialize database; optional
	var (
		db      *database.PostgresDB
		users   database.UserRepository
		archive realtime.MessageArchive
		history database.MessageRepository
	)
	if cfg.Database.URL != "" {
		db, err = database.NewPostgresDB(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database: %v", err)
		}
		users, archive, history = db, db, db
	} else {
		logger.Warn("DATABASE_URL not set; user lookups and message archive disabled")
	}

	// Initialize services
	authService := auth.NewService(cfg.JWT, users)

	gateway := realtime.NewGateway(authService, store, archive, realtime.Options{
		HistoryLimit:     cfg.Realtime.HistoryLimit,
		PresenceTTL:      cfg.Realtime.PresenceTTL,
		StoreTimeout:     cfg.Realtime.StoreTimeout,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		MaxMessageLength: cfg.Realtime.MaxMessageLength,
		PersistQueue:     cfg.Realtime.PersistQueue,
	})
	gatewayCtx, stopGateway := context.WithCancel(ctx)
	go gateway.Run(gatewayCtx)

	roomService := services.NewRoomService(gateway, history, cfg.Realtime.HistoryLimit)

	// Initialize handlers
	router := handlers.NewRouter(
		handlers.NewWebSocketHandlers(gateway, cfg.Server.HandshakeTimeout, cfg.Realtime.SendBuffer),
		handlers.NewRoomHandlers(roomService, gateway),
		handlers.NewHealthHandlers(store),
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// HTTP first so no new connections arrive, then the gateway, then its
	// backing stores.
	wait := gfshutdown.GracefulShutdown(ctx, cfg.Server.ShutdownTimeout, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			logger.Info("Server shutting down...")
			var errs []error
			if err := server.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}

			stopGateway()
			if err := gateway.Wait(ctx); err != nil {
				errs = append(errs, err)
			}

			if err := store.Close(); err != nil {
				errs = append(errs, err)
			}
			if db != nil {
				if err := db.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	})

	exitCode := <-wait
	logger.Info("Server exited with code %d", exitCode)
	os.Exit(exitCode)
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   GET  /ws")
	logger.Info("   GET  /rooms/{id}/participants")
	logger.Info("   GET  /rooms/{id}/history?limit=n")
	logger.Info("   GET  /users/{id}/presence")
	logger.Info("   GET  /healthz")
}
