package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/api"
	"github.com/suuu1021/file-upload/internal/auth"
	"github.com/suuu1021/file-upload/internal/config"
	"github.com/suuu1021/file-upload/internal/database"
	"github.com/suuu1021/file-upload/internal/logger"
	"github.com/suuu1021/file-upload/internal/monitoring"
	"github.com/suuu1021/file-upload/internal/services"
	"github.com/suuu1021/file-upload/internal/storage"
	"github.com/suuu1021/file-upload/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.Production)

	// Ensure the profile image directory exists
	files := storage.NewProfileStorage(cfg.UploadDir)
	if err := files.EnsureDir(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("Failed to create profile image directory")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db, hub)
	userService := services.NewUserService(db, files, eventService)

	// Set up and run the background orphan sweeper
	sweeper := monitoring.NewOrphanSweeper(db, files, eventService, cfg.OrphanGracePeriod)
	if err := sweeper.Start(cfg.OrphanSweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start orphan sweeper")
	}

	// Set up and run the upload volume watcher
	diskWatcher := monitoring.NewDiskWatcher(files, eventService, cfg.DiskCheckInterval)
	go diskWatcher.Run()

	// Set up router
	router := api.NewRouter(api.Options{
		Hub:            hub,
		Tokens:         auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		UserService:    userService,
		EventService:   eventService,
		Storage:        files,
		DB:             db,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		SecureCookies:  cfg.Production,
	})

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("upload_dir", files.Dir()).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	diskWatcher.Stop()
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}
