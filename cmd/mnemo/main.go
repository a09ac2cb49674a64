package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/embedder"
	"github.com/ent0n29/mnemo/internal/engine"
	"github.com/ent0n29/mnemo/internal/extraction"
	"github.com/ent0n29/mnemo/internal/httpapi"
	"github.com/ent0n29/mnemo/internal/llm"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/retrieval"
	"github.com/ent0n29/mnemo/internal/session"
	"github.com/ent0n29/mnemo/internal/summarize"
	"github.com/ent0n29/mnemo/internal/workers"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var emb embedder.Embedder
	switch cfg.EmbeddingProvider {
	case "mock":
		emb = embedder.NewMockEmbedder(cfg.EmbeddingDim)
		log.Printf("embedding provider: mock (%d dims)", cfg.EmbeddingDim)
	default:
		emb = embedder.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.LLMTimeout)
		log.Printf("embedding provider: ollama model %s (%d dims)", cfg.EmbeddingModel, cfg.EmbeddingDim)
	}

	ctx := context.Background()
	stores, err := memory.NewStores(ctx, cfg.DatabaseURL, emb)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer stores.Close()
	log.Printf("memory store mode: %s", stores.Mode)

	generator := llm.NewOllamaClient(cfg.OllamaURL, cfg.LLMModel, cfg.LLMTimeout)

	sessions := session.NewRegistry(cfg.WindowCapacity)

	pool := workers.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueLen, cfg.WorkerJobTimeout, metrics)
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	pool.Start(runCtx)

	eng := engine.New(
		sessions,
		retrieval.NewHarness(stores.Facts, stores.Episodes, emb, metrics),
		generator,
		extraction.NewPipeline(generator, stores.Facts, metrics),
		summarize.NewScheduler(generator, stores.Episodes, sessions, cfg.SummarizeThreshold, cfg.SummarizeKeep, metrics),
		pool,
		metrics,
		engine.Options{
			TopKFacts:          cfg.TopKFacts,
			TopKEpisodes:       cfg.TopKEpisodes,
			InjectionMaxTokens: cfg.InjectionMaxTokens,
			ReplyMaxTokens:     cfg.LLMMaxTokens,
			Temperature:        cfg.LLMTemperature,
		},
	)

	api := httpapi.New(cfg, eng, metrics, stores.Mode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// Let queued extraction and compression jobs drain before exit.
	pool.Stop()
	runCancel()

	log.Printf("shutdown complete")
}
