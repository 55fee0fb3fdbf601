package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"invoice-workflow-orchestrator/internal/analysis"
	"invoice-workflow-orchestrator/internal/config"
	"invoice-workflow-orchestrator/internal/domain"
	"invoice-workflow-orchestrator/internal/events"
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

	engine := analysis.NewHTTPEngine(cfg.EngineBaseURL, cfg.EngineAPIToken, cfg.CompletionURL,
		time.Duration(cfg.EngineTimeoutSec)*time.Second)

	orch := &workflow.Orchestrator{
		Store:     store,
		Submitter: engine,
	}

	source := events.NewMinioUploadEventSource(blob.Client(), cfg.WorkingBucket, "", events.UploadSuffix)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("event-handler listening for object-created events on bucket=%s", cfg.WorkingBucket)
	err = source.Run(ctx, func(parent context.Context, event events.UploadEvent) error {
		execCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		doc := domain.Document{Bucket: event.Bucket, Key: event.ObjectKey}
		inst, startErr := orch.StartInstance(execCtx, event.DocumentID, doc)
		if startErr != nil {
			// A rejected document creates no instance and is not retried
			// here; the upload stays in the working bucket for operators.
			log.Printf("failed to start workflow for object=%s: %v", event.ObjectKey, startErr)
			return nil
		}

		log.Printf("analysis job submitted job_id=%s object=%s", inst.JobID, event.ObjectKey)
		return nil
	})
	if err != nil {
		log.Fatalf("event-handler stopped with error: %v", err)
	}
}
