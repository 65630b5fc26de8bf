package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/api/middleware"
	"github.com/emberchat/ember/internal/auth"
	"github.com/emberchat/ember/internal/config"
	"github.com/emberchat/ember/internal/handlers"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/upload"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, db store.DataStore, redisStore *store.RedisStore, uploads upload.Store, tokens *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max JSON body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	// CORS - browser clients call from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(db, redisStore, uploads, tokens, cfg.AllowedOrigins, logger)
	authmw := middleware.NewAuthMiddleware(db, tokens)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Get("/users/find", h.FindUser)

		r.Post("/chats", h.CreateChat)
		r.Get("/chats", h.ListChats)
		r.Post("/chats/{id}/repair", h.RepairChat)
		r.Get("/chats/{id}/messages", h.GetMessages)
		r.Post("/chats/{id}/messages", h.SendMessage)
		r.Post("/chats/{id}/seen", h.MarkSeen)

		r.Put("/blocks/{id}", h.Block)
		r.Delete("/blocks/{id}", h.Unblock)

		r.Post("/attachments", h.UploadAttachment)

		r.Get("/sync", h.Sync)
	})

	return r
}
