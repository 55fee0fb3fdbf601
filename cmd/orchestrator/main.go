package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoice-workflow-orchestrator/internal/analysis"
	"invoice-workflow-orchestrator/internal/config"
	"invoice-workflow-orchestrator/internal/domain"
	"invoice-workflow-orchestrator/internal/events"
	"invoice-workflow-orchestrator/internal/retry"
	"invoice-workflow-orchestrator/internal/storage"
	"invoice-workflow-orchestrator/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL,
		cfg.WorkingBucket, cfg.AnalysesBucket, cfg.ArchiveBucket)
	if err != nil {
		log.Fatalf("connect minio: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("postgres ping: %v", err)
	}

	engine := analysis.NewHTTPEngine(cfg.EngineBaseURL, cfg.EngineAPIToken, cfg.CompletionURL,
		time.Duration(cfg.EngineTimeoutSec)*time.Second)
	policy := retry.DefaultPolicy()

	orch := &workflow.Orchestrator{
		Store:                store,
		Results:              blob,
		Blob:                 blob,
		Submitter:            engine,
		Aggregator:           analysis.NewAggregator(engine, cfg.PageCap, policy),
		Retry:                policy,
		MaxAutoApproveAmount: cfg.MaxAutoApproveAmount,
	}

	router := events.NewCompletionRouter(func(ctx context.Context, event domain.CompletionEvent) error {
		return orch.HandleCompletion(ctx, event)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.CompletionPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("orchestrator listening for completion events on :%s", cfg.CompletionPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
