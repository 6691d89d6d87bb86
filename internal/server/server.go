package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fashionAdvisorAi/internal/session"
)

// New constructs the HTTP server with routes and middleware.
func New(port string, sessionHandler session.Handler, staticFS http.Handler, mediaFS http.Handler) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Get("/photo", sessionHandler.Photo)
				r.Put("/photo", sessionHandler.SelectImage)
				r.Post("/suggestions", sessionHandler.Suggest)
				r.Post("/more", sessionHandler.More)
				r.Post("/feedback", sessionHandler.Feedback)
				r.Post("/like", sessionHandler.Like)
				r.Post("/save", sessionHandler.Save)
				r.Put("/filter", sessionHandler.Filter)
				r.Post("/reset", sessionHandler.Reset)
			})
		})
		r.Get("/events", sessionHandler.StreamEvents)
	})

	if mediaFS != nil {
		router.Handle("/media/*", http.StripPrefix("/media/", mediaFS))
	}

	// Serve the static frontend
	router.Handle("/*", staticFS)

	// No WriteTimeout: /api/events holds its response open.
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Println("server ready on", srv.Addr)
	return srv
}
