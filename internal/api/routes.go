package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"secure.vault/config"
	"secure.vault/internal/access"
	"secure.vault/internal/store"
)

func SetupRouter(engine *access.Engine, s store.Store, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	h := NewHandler(engine, s, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS, including preflight for every path
	r.Use(CORS(CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         cfg.CORS.MaxAge,
	}))

	// Health
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		// Token-bearing reads get the stricter limiter.
		var reveal []func(http.Handler) http.Handler
		if cfg.RateLimit.Enabled {
			apiLimiter := NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute)
			revealLimiter := NewRateLimiter(cfg.RateLimit.RevealPerMin, time.Minute)

			r.Use(apiLimiter.Middleware)
			reveal = append(reveal, revealLimiter.Middleware)
		}
		r.Use(JSONOnly)

		r.Post("/objects", h.CreateObject)
		r.With(reveal...).Get("/objects", h.FetchObject)
		r.Put("/objects", h.UpdateObject)
		r.Delete("/objects", h.DeleteObject)
		r.With(reveal...).Get("/object", h.FetchByToken)
		r.With(reveal...).Post("/toggle", h.ToggleObject)
		r.Get("/user-objects", h.ListUserObjects)

		if cfg.Admin.Token != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminOnly(cfg.Admin.Token))
				r.Get("/objects", h.ListAllObjects)
				r.Post("/sweep", h.Sweep)
			})
		}
	})

	return r
}
