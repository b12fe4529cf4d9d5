package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// MaxBodyBytes limits request bodies (0 = unlimited).
	MaxBodyBytes int64
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(MaxBodySize(cfg.MaxBodyBytes))

	r.Get("/health", h.Health)

	// Unversioned path kept for existing clients
	r.Post("/generate-audio", h.GenerateAudio)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate-audio", h.GenerateAudio)
		r.Get("/voices", h.ListVoices)

		if h.rendersEnabled() {
			r.Post("/renders", h.CreateRender)
			r.Get("/renders/{id}", h.GetRender)
			r.Get("/renders/{id}/download", h.GetRenderDownload)
		}
	})

	return r
}

// parseOrigins splits a comma-separated origin list. An empty list allows any origin.
func parseOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
