package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Cedctf/foodbridge-sub000/internal/api"
	"github.com/Cedctf/foodbridge-sub000/internal/cache"
	"github.com/Cedctf/foodbridge-sub000/internal/captcha"
	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/email"
	"github.com/Cedctf/foodbridge-sub000/internal/events"
	"github.com/Cedctf/foodbridge-sub000/internal/logger"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/storage"
	"github.com/Cedctf/foodbridge-sub000/internal/tasks"
)

const shutdownTimeout = 15 * time.Second

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	logger.Flush()
	os.Exit(1)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.IsDev(), cfg.SentryDSN)
	defer logger.Flush()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		fatal("failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			slog.Error("error disconnecting from MongoDB", "error", err)
		}
	}()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fatal("failed to connect to Redis", "error", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			slog.Error("error disconnecting from Redis", "error", err)
		}
	}()

	// Email delivery: SMTP (or log-only), plus the Redis capture in mock mode
	// and an append-only file when LOG_EMAILS is set.
	var primaryEmailSender email.Sender
	if cfg.MockServices {
		slog.Info("MOCK_SERVICES enabled, capturing emails in Redis")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg.SmtpFromAddress)
	} else {
		primaryEmailSender = email.NewSMTPSender(cfg)
	}
	emailSender := email.NewCompositeEmailSender(primaryEmailSender)
	if cfg.LogEmailsPath != "" {
		fileSender, err := email.NewFileEmailSender(cfg.LogEmailsPath)
		if err != nil {
			slog.Warn("file email logger disabled", "path", cfg.LogEmailsPath, "error", err)
		} else {
			emailSender.AddSender(fileSender)
		}
	}

	// Stores and side effects.
	listingService := services.NewListingService(mongoDb, cfg)
	requestService := services.NewRequestService(mongoDb)
	impactService := services.NewImpactService(mongoDb, cfg)
	emailTemplateService := services.NewEmailTemplateService(mongoDb)
	reconcileService := services.NewReconcileService(listingService, requestService)

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	dispatcher := tasks.NewDispatcher(taskClient, cfg)
	channel := events.Channel(cfg.AppName)
	effects := services.SideEffects{
		Impact:    dispatcher,
		Reconcile: dispatcher,
		Notifier:  dispatcher,
		Events:    events.NewPublisher(redisClient, channel),
	}

	taskProcessor := tasks.NewTaskProcessor(cfg, emailSender, emailTemplateService, impactService, reconcileService)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("service API listening", "port", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("service API stopped unexpectedly", "error", err)
		}
	}()

	var (
		mainApiSrv        *http.Server
		stopRateLimiter   func()
		backgroundTaskSrv *asynq.Server
		scheduler         *asynq.Scheduler
	)

	slog.Info("starting application", "mode", cfg.RunMode, "env", cfg.AppEnv)

	apiMode := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.EnsureIndexes(ctx, mongoDb); err != nil {
			fatal("failed to ensure indexes", "error", err)
		}

		s3Storage, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			fatal("failed to initialize S3 storage", "error", err)
		}

		queries := services.NewListingQueryService(listingService, requestService, dispatcher)
		router, limiter := api.SetupRouter(cfg, api.Services{
			Donations: services.NewDonationService(listingService, effects),
			Claims:    services.NewClaimService(listingService, requestService, effects),
			Queries:   queries,
			Impacts:   impactService,
			Assistant: services.NewAssistantService(cfg, queries),
			Storage:   s3Storage,
			Events:    events.NewSubscriber(redisClient, channel),
			Captcha:   captcha.NewTurnstileVerifier(cfg),
		})
		stopRateLimiter = limiter.Stop

		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("main API listening", "port", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fatal("main API stopped unexpectedly", "error", err)
			}
		}()
	}

	bgMode := func() {
		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(redisClient, taskProcessor)
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("background task server starting")
			if err := backgroundTaskSrv.Run(mux); err != nil {
				fatal("background task server error", "error", err)
			}
		}()

		scheduler, err = tasks.NewScheduler(redisClient, cfg)
		if err != nil {
			fatal("failed to create scheduler", "error", err)
		}
		if err := scheduler.Start(); err != nil {
			fatal("failed to start scheduler", "error", err)
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		fatal("invalid run mode", "mode", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case <-shutdownChan:
		slog.Info("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		slog.Error("service API shutdown error", "error", err)
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			slog.Error("main API shutdown error", "error", err)
		}
		stopRateLimiter()
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		// Run returns once Shutdown completes.
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	slog.Info("server gracefully stopped")
}
