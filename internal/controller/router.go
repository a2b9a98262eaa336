package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		// banned addresses are refused by the coordinator so that they get a close code
		r.Get("/ws", c.serveWS)

		r.Group(func(r chi.Router) {
			r.Use(c.banMw)
			r.Use(c.authMw)

			r.Route("/queue", func(r chi.Router) {
				r.Post("/", c.queue)
				r.Post("/banger", c.queueBanger)
				r.Post("/skip", c.skip)
				r.Delete("/{item-id}", c.unqueue)
			})
			r.Route("/echoes", func(r chi.Router) {
				r.Post("/", c.addEcho)
				r.Delete("/", c.removeEcho)
			})
			r.Route("/admin", func(r chi.Router) {
				r.Post("/authorize", c.authorizeAdmin)
				r.Post("/command", c.command)
			})
		})
	})

	return r
}
