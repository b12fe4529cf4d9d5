package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/storyvoice/internal/api"
	"github.com/bobarin/storyvoice/internal/config"
	"github.com/bobarin/storyvoice/internal/db"
	"github.com/bobarin/storyvoice/internal/pipeline"
	"github.com/bobarin/storyvoice/internal/queue"
	"github.com/bobarin/storyvoice/internal/services"
	"github.com/bobarin/storyvoice/internal/storage"
	"github.com/bobarin/storyvoice/internal/voices"
	"github.com/bobarin/storyvoice/internal/worker"
)

func main() {
	log.Println("Starting StoryVoice API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Text model
	llm, err := services.NewTextGenerator(ctx, services.TextGeneratorConfig{
		Provider:         cfg.LLMProvider,
		GeminiKey:        cfg.GeminiKey,
		GeminiModel:      cfg.GeminiModel,
		OpenAIKey:        cfg.OpenAIKey,
		OpenAIModel:      cfg.OpenAIModel,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OllamaModel:      cfg.OllamaModel,
		AnthropicKey:     cfg.AnthropicKey,
		AnthropicModel:   cfg.AnthropicModel,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize text model: %v", err)
	}
	log.Printf("Text model provider: %s", cfg.LLMProvider)

	// ElevenLabs serves both synthesis and the voice catalog
	elevenlabs := services.NewElevenLabsService(cfg.ElevenLabsKey, services.ElevenLabsOptions{
		BaseURL: cfg.ElevenLabsBaseURL,
		ModelID: cfg.ElevenLabsModel,
		Settings: &services.VoiceSettings{
			Stability:       cfg.VoiceStability,
			SimilarityBoost: cfg.VoiceSimilarityBoost,
			Style:           cfg.VoiceStyle,
		},
	})

	catalog := voices.NewCatalog(elevenlabs, cfg.CatalogTimeout)
	if n := catalog.Load(ctx); n == 0 {
		if cfg.ElevenLabsDefaultVoiceID == "" {
			log.Fatalf("Voice catalog is empty and ELEVENLABS_DEFAULT_VOICE_ID is not set")
		}
		log.Printf("WARNING: Voice catalog is empty, every character will use voice %s", cfg.ElevenLabsDefaultVoiceID)
	}
	if cfg.CatalogRefresh > 0 {
		go catalog.Run(ctx, cfg.CatalogRefresh)
		log.Printf("Voice catalog refresh every %v", cfg.CatalogRefresh)
	}

	p := pipeline.New(llm, elevenlabs, catalog, pipeline.Options{
		DefaultVoiceID:        cfg.ElevenLabsDefaultVoiceID,
		TempDir:               cfg.TempDir,
		MaxConcurrentSegments: cfg.MaxConcurrentSegments,
		ModelTimeout:          cfg.ModelTimeout,
		SynthesisTimeout:      cfg.SynthesisTimeout,
	})

	handler := api.NewHandler(p, catalog, cfg.MaxTextLength)

	// Async renders: Postgres status, Redis queue, Supabase storage, background worker
	if cfg.AsyncRendersEnabled {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		log.Println("Connected to database")

		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		log.Println("Connected to Redis queue")

		stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		log.Println("Initialized Supabase storage")

		handler.WithRenders(database, q, stor)

		w := worker.New(database, q, stor, p)
		go w.Start(ctx, cfg.MaxConcurrentJobs)
	}

	// UTF-8 text is at most 4 bytes per character, plus room for the JSON envelope
	var maxBody int64
	if cfg.MaxTextLength > 0 {
		maxBody = int64(cfg.MaxTextLength)*4 + 1024
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		MaxBodyBytes:       maxBody,
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start server in goroutine
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

	// Stop the refresh loop and worker
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
