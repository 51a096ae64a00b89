package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyweaver/internal/http/handlers"
	"storyweaver/internal/infra"
	"storyweaver/internal/middleware"
)

// NewRouter assembles the API surface. Generation endpoints sit behind the
// per-IP rate limit; read-only endpoints do not.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.I18N(cfg.DefaultLocale))

	limited := middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/story", func(r chi.Router) {
		r.Get("/", app.GetStory)
		r.With(limited).Post("/", app.StartStory)
		r.With(limited).Post("/extend", app.ExtendStory)
		r.With(limited).Post("/scenes/{scene_id}/image/edit", app.EditSceneImage)
		r.Delete("/", app.StartOver)
		r.Delete("/error", app.DismissError)
	})

	return r
}
