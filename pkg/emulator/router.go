package emulator

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP routes of the emulator. Extra middleware, such
// as a request logger, is applied before the routes.
func NewRouter(st *Store, mws ...func(http.Handler) http.Handler) http.Handler {
	h := NewHandler(st)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mws...)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(st))

		r.Route("/databases", func(r chi.Router) {
			r.Post("/", h.CreateDatabase)
			r.Get("/{id}", h.GetDatabase)
			r.Patch("/{id}", h.UpdateDatabase)
			r.Post("/{id}/query", h.QueryDatabase)
		})

		r.Route("/pages", func(r chi.Router) {
			r.Post("/", h.CreatePage)
			r.Get("/{id}", h.GetPage)
			r.Patch("/{id}", h.UpdatePage)
		})
	})

	return r
}
