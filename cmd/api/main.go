package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/adreel/internal/api"
	"github.com/bobarin/adreel/internal/config"
	"github.com/bobarin/adreel/internal/db"
	"github.com/bobarin/adreel/internal/pipeline"
	"github.com/bobarin/adreel/internal/queue"
	"github.com/bobarin/adreel/internal/services"
	"github.com/bobarin/adreel/internal/worker"
)

func main() {
	log.Println("Starting adreel API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	if cfg.RunMigrations {
		if err := database.Migrate(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations applied")
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	handler := api.NewHandler(database, q)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		providers, err := buildProviders(cfg)
		if err != nil {
			log.Fatalf("Failed to build providers: %v", err)
		}

		store, err := buildArtifactStore(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Failed to initialize artifact store: %v", err)
		}
		if store != nil {
			log.Printf("Artifact store: %s", store.Name())
		} else {
			log.Println("Artifact store disabled, artifacts stay in the work directory")
		}

		orchestrator := pipeline.New(providers, pipeline.Options{
			WorkRoot:          cfg.WorkRoot,
			SceneWorkers:      cfg.SceneWorkers,
			MaxScenes:         cfg.MaxScenes,
			CaptionTemplateID: cfg.ZapCapTemplateID,
			Avatar: services.AvatarOptions{
				AvatarID:   cfg.HeyGenAvatarID,
				VoiceID:    cfg.HeyGenVoiceID,
				VoiceSpeed: cfg.HeyGenVoiceSpeed,
			},
		})

		w := worker.New(database, q, orchestrator, store, cfg.JobTimeout, cfg.MaxConcurrentUploads)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go func() {
			defer close(workerDone)
			w.Start(workerCtx, cfg.MaxConcurrentJobs)
		}()
	} else {
		close(workerDone)
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	select {
	case <-workerDone:
	case <-ctx.Done():
		log.Println("Worker did not stop in time")
	}

	log.Println("Server exited")
}
