package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"radboard/internal/http/handlers"
	"radboard/internal/infra"
	"radboard/internal/middleware"
)

// Options carries the extra wiring the router needs beyond the handler
// container.
type Options struct {
	Logger          infra.Logger
	WSHandler       stdhttp.Handler
	StaticDir       string
	RateLimitPerMin int
}

// NewRouter builds the HTTP route table.
func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS,
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/posts", func(r chi.Router) {
		r.Get("/", app.ListPosts)
		r.Post("/", app.CreatePost)
		r.Route("/{post_id}", func(r chi.Router) {
			r.Get("/", app.GetPost)
			r.Delete("/", app.DeletePost)
			r.Post("/comments", app.AddComment)
			r.Put("/reactions/{reaction}", app.AddReaction)
			r.Delete("/generation", app.CancelGeneration)
		})
	})

	r.Route("/v1/generations", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			// Provider quota is the scarce resource; cap submissions per IP.
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.RequestGeneration)
		} else {
			r.Post("/", app.RequestGeneration)
		}
		r.Get("/{job_id}", app.GetGeneration)
	})

	if opts.WSHandler != nil {
		r.Handle("/v1/ws", opts.WSHandler)
	}

	if opts.StaticDir != "" {
		fs := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
