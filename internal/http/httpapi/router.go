package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tryon/internal/http/handlers"
	"tryon/internal/middleware"
)

// NewRouter mounts the public, authenticated and rate-limited routes.
func NewRouter(app *handlers.App) http.Handler {
	cfg := app.Config
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.I18N("en", app.Country),
	)

	r.Get("/v1/healthz", app.Health)
	if cfg.StorageDriver == "filesystem" {
		// assets written by the filesystem store; minio serves its own
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StoragePath))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))

		r.Get("/credits", app.Credits)
		r.Get("/generate/status", app.GenerateStatus)

		// provider calls and credit spend
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
			r.Post("/generate/image", app.GenerateImage)
			r.Post("/generate/video", app.GenerateVideo)
			r.Post("/uploads", app.Upload)
		})
	})

	return r
}
