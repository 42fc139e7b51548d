package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benvon/health-report/internal/config"
	"github.com/benvon/health-report/internal/database"
	"github.com/benvon/health-report/internal/handlers"
	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/middleware"
	"github.com/benvon/health-report/internal/queue"
	"github.com/benvon/health-report/internal/report"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/services/oidc"
	"github.com/benvon/health-report/internal/storage"
	"github.com/benvon/health-report/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	devFlag := flag.Bool("dev", false, "Use console log output")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, *devFlag)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		// Sync errors on stderr are expected and ignored
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("report_model", cfg.ReportModel),
		zap.String("classify_model", cfg.ClassifyModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.ServiceNameAPI, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.String("error", logger.SanitizeError(err)))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
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

	// Redis backs the report rate limit; without it each replica limits on its own
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("redis_unavailable_using_in_memory_rate_limit", zap.String("error", logger.SanitizeError(err)))
			redisClient = nil
		} else {
			zapLogger.Info("connected_to_redis")
			defer func() {
				if err := redisClient.Close(); err != nil {
					zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
				}
			}()
		}
	}

	// The queue is optional for the API: without it uploads stay unclassified and
	// failed upload deletions are left to the worker's sweep.
	var jobQueue *queue.RabbitMQQueue
	if cfg.RabbitMQURL != "" {
		jobQueue = connectQueue(ctx, cfg.RabbitMQURL, zapLogger)
		if jobQueue != nil {
			defer func() {
				if err := jobQueue.Close(); err != nil {
					zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
				}
			}()
		}
	}

	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_not_configured")
	}
	provider := ai.NewOpenAIProvider(ai.ProviderOptions{
		APIKey:    cfg.OpenAIKey,
		BaseURL:   cfg.AIBaseURL,
		Model:     cfg.ReportModel,
		Timeout:   cfg.AITimeout,
		Logger:    zapLogger,
		DebugMode: debugMode,
	})
	classifier := ai.NewClassifier(provider, provider, cfg.ClassifyModel, zapLogger)

	if cfg.OIDCIssuer == "" {
		zapLogger.Fatal("oidc_issuer_not_configured")
	}
	oidcCfg := oidc.Config{
		Issuer:       cfg.OIDCIssuer,
		JWKSURL:      cfg.OIDCJWKSURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURI:  cfg.OIDCRedirectURI,
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	oidcProvider := oidc.NewProvider(oidcCfg, httpClient)
	endpoints := oidcProvider.Endpoints(ctx)
	verifier := oidc.NewVerifier(oidc.NewJWKSManager(oidc.DefaultJWKSTTL, httpClient), endpoints.JWKS, cfg.OIDCIssuer, cfg.OIDCClientID)
	oauthClient := oidc.NewClient(oidcCfg, endpoints)

	userRepo := database.NewUserRepository(db)
	noteRepo := database.NewNoteRepository(db)
	fileRepo := database.NewFileRepository(db)
	integrationRepo := database.NewIntegrationRepository(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := report.NewMetrics(registry)

	// Typed nils must not reach these interfaces when the queue is down
	var (
		retrier  report.CleanupRetrier
		enqueuer handlers.ClassificationEnqueuer
	)
	if jobQueue != nil {
		producer := queue.NewProducer(jobQueue)
		retrier = producer
		enqueuer = producer
	}

	reportService := report.NewService(report.ServiceOptions{
		Collector: report.NewCollector(userRepo, noteRepo, fileRepo, integrationRepo, zapLogger),
		Assembler: report.NewAssembler(report.Budget{
			Ceiling:        cfg.ReportBudgetCeiling,
			ImageAllowance: cfg.ReportImageAllowance,
			PDFAllowance:   cfg.ReportPDFAllowance,
		}),
		Resolver: report.NewResolver(blobs, provider, cfg.ReportResolveConcurrency, zapLogger, metrics),
		Invoker:  report.NewInvoker(provider, cfg.ReportModel, zapLogger),
		Deleter:  provider,
		Retrier:  retrier,
		Logger:   zapLogger,
		Metrics:  metrics,
	})

	limiterStore, err := middleware.NewLimiterStore(redisClient, "health_report_limiter")
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	reportRateLimit, err := middleware.RateLimit(limiterStore, cfg.ReportRateLimit)
	if err != nil {
		zapLogger.Fatal("invalid_report_rate_limit", zap.Error(err))
	}

	checks := map[string]handlers.CheckFunc{
		"database": db.HealthCheck,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if jobQueue != nil {
		checks["rabbitmq"] = jobQueue.HealthCheck
	}

	authMW := middleware.Auth(verifier, userRepo, cfg.SessionCookieName, zapLogger)
	authHandler := handlers.NewAuthHandler(oidcProvider, oauthClient, handlers.AuthOptions{
		CookieName:   cfg.SessionCookieName,
		FrontendURL:  cfg.PrimaryFrontendURL(),
		SecureCookie: cfg.EnableHSTS,
		Logger:       zapLogger,
	})

	r := mux.NewRouter()

	// mux runs middleware in registration order, first registered outermost
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))
	if tracingEnabled {
		r.Use(otelmux.Middleware(telemetry.ServiceNameAPI))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.AllowedOrigins(), zapLogger))
	r.Use(middleware.ContentType)

	r.HandleFunc("/healthz", handlers.NewHealthChecker(checks).HealthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})).Methods("GET")

	handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml")).RegisterRoutes(r)
	authHandler.RegisterCallback(r)

	api := r.PathPrefix("/api/v1").Subrouter()

	authRouter := api.PathPrefix("/auth").Subrouter()
	authRouter.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, 0))
	authHandler.RegisterPublicRoutes(authRouter)
	protectedAuth := authRouter.PathPrefix("").Subrouter()
	protectedAuth.Use(authMW)
	authHandler.RegisterRoutes(protectedAuth)

	// Model calls are bounded by the AI client timeout, not the request timeout
	aiRouter := api.PathPrefix("").Subrouter()
	aiRouter.Use(middleware.MaxRequestSize(middleware.DefaultMaxImageJSONSize, middleware.DefaultMaxUploadSize))
	aiRouter.Use(authMW)
	handlers.NewClassifyHandler(classifier, zapLogger).RegisterRoutes(aiRouter)

	reportRouter := aiRouter.PathPrefix("/report").Subrouter()
	reportRouter.Use(reportRateLimit)
	handlers.NewReportHandler(reportService, zapLogger).RegisterRoutes(reportRouter)

	crud := api.PathPrefix("").Subrouter()
	crud.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, middleware.DefaultMaxUploadSize))
	crud.Use(authMW)
	crud.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	handlers.NewProfileHandler(userRepo).RegisterRoutes(crud.PathPrefix("/profile").Subrouter())
	handlers.NewNoteHandler(noteRepo).RegisterRoutes(crud.PathPrefix("/notes").Subrouter())
	handlers.NewFileHandler(fileRepo, blobs, enqueuer, cfg.SignedURLTTL, zapLogger).
		RegisterRoutes(crud.PathPrefix("/files").Subrouter())

	// Preflight requests are answered by the CORS middleware; this only gives them a route
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.AITimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	// In-flight reports still release their uploads; give them the AI timeout to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AITimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectQueue retries the RabbitMQ connection with exponential backoff to ride out
// broker startup. It returns nil if the broker stays unreachable.
func connectQueue(ctx context.Context, url string, zapLogger *zap.Logger) *queue.RabbitMQQueue {
	const maxRetries = 5
	const initialDelay = 2 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q
		}

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.String("error", logger.SanitizeError(err)),
			zap.Duration("retry_delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}

	zapLogger.Error("rabbitmq_unavailable_background_jobs_disabled", zap.Int("max_retries", maxRetries))
	return nil
}

func versionInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// Only expose minimal version info
	_, _ = fmt.Fprintf(w, `{"version":%q,"timestamp":%q}`, version, time.Now().UTC().Format(time.RFC3339))
}

