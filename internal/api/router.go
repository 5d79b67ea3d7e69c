package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", apiHandler.RootHandler)
	r.Get("/health", apiHandler.HealthHandler)
	r.Get("/tools", apiHandler.ListToolsHandler)

	r.Route("/contactos", func(r chi.Router) {
		r.Post("/", apiHandler.CreateContactHandler)
		r.Get("/", apiHandler.ListContactsHandler)
		r.Get("/{id}", apiHandler.GetContactHandler)
		r.Put("/{id}", apiHandler.ReplaceContactHandler)
		r.Delete("/{id}", apiHandler.DeleteContactHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)
		r.Post("/chat", apiHandler.ChatHandler)
	})

	return r
}
