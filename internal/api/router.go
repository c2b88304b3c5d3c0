package api

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/suuu1021/file-upload/internal/api/handlers"
	"github.com/suuu1021/file-upload/internal/auth"
	"github.com/suuu1021/file-upload/internal/services"
	"github.com/suuu1021/file-upload/internal/storage"
	"github.com/suuu1021/file-upload/internal/websocket"
)

// Options carries the dependencies the router wires into its handlers.
type Options struct {
	Hub            *websocket.Hub
	Tokens         *auth.TokenManager
	UserService    services.UserServiceProvider
	EventService   services.EventServiceProvider
	Storage        *storage.ProfileStorage
	DB             *sql.DB
	AllowedOrigins []string
	SecureCookies  bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(auth.Gate(opts.Tokens, auth.DefaultRules()))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(opts.UserService, opts.Tokens, opts.SecureCookies)
	eventHandler := handlers.NewEventHandler(opts.EventService)
	wsHandler := handlers.NewWebSocketHandler(opts.Hub, opts.AllowedOrigins)
	healthHandler := handlers.NewHealthHandler(opts.DB, opts.Storage)

	r.Post("/join", userHandler.Join)
	r.Post("/login", userHandler.Login)
	r.Post("/logout", userHandler.Logout)

	r.Route("/user", func(r chi.Router) {
		r.Get("/me", userHandler.GetMe)
		r.Put("/update", userHandler.Update)
		r.Post("/profile-image", userHandler.UploadProfileImage)
		r.Delete("/profile-image", userHandler.DeleteProfileImage)
		r.Get("/events", eventHandler.GetRecent)
		r.Get("/ws", wsHandler.Serve)
	})

	r.Handle(storage.PublicPrefix+"*", profileImages(storage.PublicPrefix, opts.Storage.Dir()))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)
	})

	return r
}
