package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/health-report/internal/config"
	"github.com/benvon/health-report/internal/database"
	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/queue"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/storage"
	"github.com/benvon/health-report/internal/telemetry"
	"github.com/benvon/health-report/internal/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	dlqGCInterval  = time.Hour
	dlqGCRetention = 7 * 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	devFlag := flag.Bool("dev", false, "Use console log output")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, *devFlag)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("classify_model", cfg.ClassifyModel),
		zap.String("sweep_schedule", cfg.UploadSweepSchedule),
		zap.Duration("sweep_max_age", cfg.UploadSweepMaxAge),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, telemetry.ServiceNameWorker, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.String("error", logger.SanitizeError(err)))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_not_configured")
	}
	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_not_configured")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	blobs, err := storage.NewGCSStore(ctx, storage.Options{
		Bucket:          cfg.GCSBucket,
		CredentialsFile: cfg.GCSCredentialsFile,
		CredentialsJSON: cfg.GCSCredentialsJSON,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_blob_store", zap.Error(err))
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			zapLogger.Warn("failed_to_close_blob_store", zap.Error(err))
		}
	}()

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	provider := ai.NewOpenAIProvider(ai.ProviderOptions{
		APIKey:    cfg.OpenAIKey,
		BaseURL:   cfg.AIBaseURL,
		Model:     cfg.ClassifyModel,
		Timeout:   cfg.AITimeout,
		Logger:    zapLogger,
		DebugMode: debugMode,
	})
	classifier := ai.NewClassifier(provider, provider, cfg.ClassifyModel, zapLogger)

	classification := workers.NewFileClassificationWorker(database.NewFileRepository(db), blobs, classifier, zapLogger)
	cleanup := workers.NewUploadCleanupWorker(provider, zapLogger)

	dispatcher := workers.NewDispatcher(jobQueue, zapLogger)
	dispatcher.RegisterProcessor(queue.JobTypeClassifyFile, classification.ProcessClassifyFileJob, true)
	dispatcher.RegisterProcessor(queue.JobTypeDeleteExternalUpload, cleanup.ProcessDeleteExternalUploadJob, true)

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(workers.CronLogger(zapLogger))))
	sweeper := workers.NewUploadSweeper(provider, cfg.UploadSweepMaxAge, zapLogger)
	if _, err := sweeper.Schedule(ctx, scheduler, cfg.UploadSweepSchedule); err != nil {
		zapLogger.Fatal("failed_to_schedule_upload_sweep", zap.Error(err))
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.WorkerMetricsPort != "" {
		metricsSrv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLogger.Error("worker_metrics_server_failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
		zapLogger.Info("worker_metrics_listening", zap.String("port", cfg.WorkerMetricsPort))
	}

	gc := queue.NewGarbageCollector(jobQueue, dlqGCInterval, dlqGCRetention, queue.NewGCMetrics(registry), zapLogger)
	go func() {
		if err := gc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", dlqGCInterval),
		zap.Duration("retention", dlqGCRetention),
	)

	zapLogger.Info("worker_started")
	if err := dispatcher.Run(ctx, jobQueue, cfg.RabbitMQPrefetch); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("worker_stopped_with_error", zap.Error(err))
		return
	}
	zapLogger.Info("worker_stopped")
}
