package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/syllabus-approval-api/api/swagger"
	"github.com/noah-isme/syllabus-approval-api/internal/console"
	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/handler"
	internalmiddleware "github.com/noah-isme/syllabus-approval-api/internal/middleware"
	"github.com/noah-isme/syllabus-approval-api/internal/repository"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
	"github.com/noah-isme/syllabus-approval-api/pkg/cache"
	"github.com/noah-isme/syllabus-approval-api/pkg/config"
	"github.com/noah-isme/syllabus-approval-api/pkg/database"
	"github.com/noah-isme/syllabus-approval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/syllabus-approval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/syllabus-approval-api/pkg/middleware/requestid"
	"github.com/noah-isme/syllabus-approval-api/pkg/storage"
)

// @title Syllabus Approval API
// @version 1.0.0
// @description Curriculum approval and change-request review for university reviewers
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Events.Backend == config.EventsBackendRedis || cfg.Approvals.StatsCacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var broker events.Broker
	switch cfg.Events.Backend {
	case config.EventsBackendMemory:
		memory := events.NewMemoryBroker()
		defer memory.Close()
		broker = memory
	default:
		broker = events.NewRedisBroker(redisClient, logr)
	}

	metrics := service.NewMetricsService()

	approvalRepo := repository.NewApprovalRepository(db)
	changeRepo := repository.NewChangeRequestRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	approvalOpts := []service.ApprovalServiceOption{
		service.WithApprovalPublisher(broker),
		service.WithApprovalMetrics(metrics),
		service.WithApprovalListLimit(cfg.Approvals.ListLimit),
	}
	changeOpts := []service.ChangeRequestServiceOption{
		service.WithChangePublisher(broker),
		service.WithChangeMetrics(metrics),
	}
	if redisClient != nil {
		statsRepo := repository.NewStatsCacheRepository(redisClient)
		if cfg.Approvals.StatsCacheEnabled {
			statsCache := service.NewStatsCache(statsRepo, metrics, cfg.Approvals.StatsCacheTTL, logr, true)
			approvalOpts = append(approvalOpts, service.WithApprovalCache(statsCache))
			changeOpts = append(changeOpts, service.WithChangeStatsInvalidator(statsCache))
		} else if removed, err := statsRepo.Flush(ctx); err != nil {
			logr.Warn("failed to flush stale statistics cache", zap.Error(err))
		} else if removed > 0 {
			logr.Info("stale statistics cache flushed", zap.Int("keys", removed))
		}
	}

	approvalSvc := service.NewApprovalService(approvalRepo, auditRepo, logr, approvalOpts...)
	changeSvc := service.NewChangeRequestService(changeRepo, curriculumRepo, auditRepo, nil, logr, changeOpts...)
	curriculumSvc := service.NewCurriculumService(curriculumRepo, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	exportSvc := service.NewExportService(approvalSvc, exportStore,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL), auditRepo,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}, logr)
	go runExportCleanup(ctx, exportSvc, cfg.Exports.CleanupInterval, logr)

	manager := console.NewManager(console.NewServiceBackend(approvalSvc, changeSvc, curriculumSvc), broker, console.ManagerConfig{
		Session: console.SessionConfig{
			MinimumSpinnerDuration: cfg.Console.MinimumSpinnerDuration,
			ReconnectDelay:         cfg.Console.ReconnectDelay,
			ListLimit:              cfg.Approvals.ListLimit,
		},
		SessionTTL: cfg.Console.SessionTTL,
		Workers:    cfg.Console.Workers,
	}, metrics, logr)
	manager.Start(ctx)
	defer manager.Stop()

	checks := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.WithResponseMeta())
	handler.RegisterRoutes(api, handler.Handlers{
		Approvals: handler.NewApprovalHandler(approvalSvc),
		Changes:   handler.NewChangeRequestHandler(changeSvc),
		Curricula: handler.NewCurriculumHandler(curriculumSvc),
		Exports:   handler.NewExportHandler(exportSvc),
		Events:    handler.NewEventsHandler(broker, logr),
		Console:   handler.NewConsoleHandler(manager),
		Metrics:   metricsHandler,
		Auth:      internalmiddleware.JWT(tokenSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "events_backend", cfg.Events.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func runExportCleanup(ctx context.Context, exports *service.ExportService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := exports.Cleanup(0); err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}
