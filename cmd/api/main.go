package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fashionAdvisorAi/internal/config"
	"fashionAdvisorAi/internal/events"
	"fashionAdvisorAi/internal/media"
	"fashionAdvisorAi/internal/server"
	"fashionAdvisorAi/internal/session"
	"fashionAdvisorAi/internal/storage"
	"fashionAdvisorAi/internal/stylist"
)

func main() {
	cfg := config.FromEnv()

	ctx := context.Background()
	kv, err := storage.NewKeyValue(ctx, cfg.DatabaseURL, cfg.StatePath)
	if err != nil {
		log.Fatalf("failed to init preference store: %v", err)
	}
	defer kv.Close()
	prefs := storage.NewPreferences(kv)

	var uploader media.Uploader
	var mediaFS http.Handler
	if cfg.Media.Bucket != "" && cfg.Media.Region != "" {
		uploader, err = media.NewUploader(ctx, media.Config{
			Bucket:         cfg.Media.Bucket,
			Region:         cfg.Media.Region,
			Endpoint:       cfg.Media.Endpoint,
			PublicURL:      cfg.Media.PublicURL,
			KeyPrefix:      cfg.Media.KeyPrefix,
			ForcePathStyle: cfg.Media.ForcePathStyle,
		})
		if err != nil {
			log.Fatalf("failed to init media uploader: %v", err)
		}
	} else {
		local, err := media.NewLocalUploader(cfg.Media.LocalDir, "/media")
		if err != nil {
			log.Fatalf("failed to init local media storage: %v", err)
		}
		uploader = local
		mediaFS = http.FileServer(http.Dir(local.BaseDir))
		log.Println("media uploader: using local storage (S3 config missing)")
	}

	advisor := stylist.NewGeminiAdvisor(stylist.AdvisorConfig{
		APIKey:   cfg.Gemini.APIKey,
		Model:    cfg.Gemini.SuggestionModel,
		Timeout:  cfg.Gemini.RequestTimeout,
		CacheTTL: cfg.Gemini.CacheTTL,
	})

	var renderer stylist.Renderer
	if cfg.RenderProvider == "imagen" && cfg.Imagen.ProjectID != "" {
		renderer = stylist.NewVertexImagen(stylist.VertexImagenConfig{
			ProjectID:          cfg.Imagen.ProjectID,
			Location:           cfg.Imagen.Location,
			Model:              cfg.Imagen.Model,
			APIKey:             cfg.Gemini.APIKey,
			ServiceAccountJSON: cfg.Imagen.ServiceAccount,
		})
		log.Println("renderer ready: Vertex Imagen")
	} else {
		renderer = stylist.NewGeminiRenderer(cfg.Gemini.APIKey, cfg.Gemini.ImageModel, cfg.Gemini.RequestTimeout)
		log.Println("renderer ready: Gemini")
	}

	eventBroker := events.NewBroker()

	manager := session.NewManager(session.ManagerConfig{
		Advisor:       advisor,
		Renderer:      renderer,
		Preferences:   prefs,
		Broker:        eventBroker,
		Uploader:      uploader,
		CancelOnReset: cfg.CancelOnReset,
	})

	sessionHandler := session.Handler{
		Manager: manager,
		Broker:  eventBroker,
	}

	staticFS := http.FileServer(http.Dir("web"))
	srv := server.New(cfg.Port, sessionHandler, staticFS, mediaFS)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		log.Println("shutting down server...")
		if err := srv.Close(); err != nil {
			log.Printf("server close error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
