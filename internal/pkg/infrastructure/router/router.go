package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
)

type Options struct {
	ServiceName string
	// RateLimit is the number of requests per minute allowed from one address. Zero disables the limit.
	RateLimit int
	Metrics   func(http.Handler) http.Handler
}

func New(opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Current-Page", "X-Page-Size", "X-Total-Page", "X-Total-Element"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	r.Use(otelchi.Middleware(opts.ServiceName, otelchi.WithChiRoutes(r)))

	if opts.Metrics != nil {
		r.Use(opts.Metrics)
	}

	if opts.RateLimit > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
	}

	return r
}
