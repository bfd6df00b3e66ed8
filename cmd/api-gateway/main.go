package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/hostel-noc-api/api/swagger"
	"github.com/noah-isme/hostel-noc-api/internal/handler"
	"github.com/noah-isme/hostel-noc-api/internal/repository"
	"github.com/noah-isme/hostel-noc-api/internal/service"
	"github.com/noah-isme/hostel-noc-api/pkg/cache"
	"github.com/noah-isme/hostel-noc-api/pkg/config"
	"github.com/noah-isme/hostel-noc-api/pkg/database"
	"github.com/noah-isme/hostel-noc-api/pkg/jobs"
	"github.com/noah-isme/hostel-noc-api/pkg/logger"
	"github.com/noah-isme/hostel-noc-api/pkg/telemetry"
)

// @title Hostel NOC API
// @version 1.0.0
// @description Hostel exit clearance (No Objection Certificate) workflow
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Env, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var cacheClient redis.UniversalClient
	if cfg.NOC.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, checklist cache disabled", zap.Error(err))
		} else {
			cacheClient = client
			defer client.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	nocRepo := repository.NewNOCRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var cacheRepo service.CacheRepository
	if cacheClient != nil {
		cacheRepo = repository.NewCacheRepository(cacheClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.NOC.ChecklistCacheTTL, logr, cfg.NOC.CacheEnabled)

	worker := service.NewNotificationWorker(notificationRepo, metrics, logr)
	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		OnGiveUp:   worker.GiveUp,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	notifier := service.NewNotificationService(queue, notificationRepo, logr)

	checklistSvc := service.NewChecklistService(checklistRepo, validate, logr,
		service.WithChecklistCache(cacheSvc, cfg.NOC.ChecklistCacheTTL),
		service.WithChecklistAudit(userRepo),
	)
	nocSvc := service.NewNOCService(nocRepo, studentRepo, checklistSvc, userRepo, logr,
		service.WithNOCAuthorizer(service.NewCohortAuthorizer(studentRepo)),
		service.WithNOCNotifier(notifier),
		service.WithNOCAudit(userRepo),
		service.WithNOCMetrics(metrics),
		service.WithWardenReverify(cfg.NOC.AllowWardenReverify),
		service.WithDeactivationTimeout(cfg.NOC.DeactivationTimeout),
	)
	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if cacheClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cacheClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routerDeps{
		tokens:        tokens,
		metrics:       metrics,
		audit:         userRepo,
		noc:           handler.NewNOCHandler(nocSvc),
		checklist:     handler.NewChecklistHandler(checklistSvc),
		notifications: handler.NewNotificationHandler(notifier),
		observability: handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
