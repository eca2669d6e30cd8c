package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trueloggs/timesync/internal/services"
)

// NewRouter wires the public auth endpoints and the token-protected sync
// endpoints.
func NewRouter(auth *services.AuthService, sync *services.SyncService) http.Handler {
	authHandler := NewAuthHandler(auth)
	syncHandler := NewSyncHandler(sync)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Use(RequireAuth(auth))
			r.Get("/status", syncHandler.Status)
			r.Get("/pull", syncHandler.Pull)
			r.Post("/push", syncHandler.Push)
			r.Post("/migrate", syncHandler.Migrate)
		})
	})

	return r
}
