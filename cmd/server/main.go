package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	analyticsbiz "github.com/univora/sharebox-backend/internal/analytics/biz"
	analyticsdata "github.com/univora/sharebox-backend/internal/analytics/data"
	analyticsservice "github.com/univora/sharebox-backend/internal/analytics/service"
	"github.com/univora/sharebox-backend/internal/conf"
	"github.com/univora/sharebox-backend/internal/data"
	linkbiz "github.com/univora/sharebox-backend/internal/link/biz"
	linkdata "github.com/univora/sharebox-backend/internal/link/data"
	linkservice "github.com/univora/sharebox-backend/internal/link/service"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/pkg/workerpool"
	referralbiz "github.com/univora/sharebox-backend/internal/referral/biz"
	referraldata "github.com/univora/sharebox-backend/internal/referral/data"
	retrievalbiz "github.com/univora/sharebox-backend/internal/retrieval/biz"
	retrievaldata "github.com/univora/sharebox-backend/internal/retrieval/data"
	"github.com/univora/sharebox-backend/internal/server"
	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
	storagedata "github.com/univora/sharebox-backend/internal/storage/data"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
	userdata "github.com/univora/sharebox-backend/internal/user/data"
	userservice "github.com/univora/sharebox-backend/internal/user/service"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize worker pool for detached delivery and cleanup tasks
	pool, err := workerpool.New(&workerpool.Config{Workers: config.Bot.Workers}, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize worker pool", zap.Error(err))
	}
	defer pool.Shutdown()

	// Initialize storage channels
	channelStore := storagedata.NewMinioChannelStore(d.MinIOClient, config.Bot.StorageBuckets, log)
	if err := channelStore.EnsureBuckets(context.Background()); err != nil {
		log.Fatal("failed to ensure storage buckets", zap.Error(err))
	}
	deliverer := storagedata.NewMinioDeliverer(d.MinIOClient, config.Bot.DeliveryBucket)
	if err := deliverer.EnsureBucket(context.Background()); err != nil {
		log.Fatal("failed to ensure delivery bucket", zap.Error(err))
	}

	// Initialize repositories
	userRepo := userdata.NewUserRepo(d.DB)
	linkRepo := linkdata.NewLinkRepo(d.DB)
	referralRepo := referraldata.NewReferralRepo(d.DB)
	eventRepo := analyticsdata.NewEventRepo(d.DB)
	sessionRepo := retrievaldata.NewRedisSessionRepo(d.RedisClient)

	// Initialize use cases
	userUseCase := userbiz.NewUserUseCase(userRepo, config.Bot.AdminIDs, log)
	linkUseCase := linkbiz.NewLinkUseCase(linkRepo, userUseCase, log)
	referralUseCase := referralbiz.NewReferralUseCase(referralRepo, userUseCase, log)
	analyticsUseCase := analyticsbiz.NewAnalyticsUseCase(eventRepo, log)
	uploadCoordinator := storagebiz.NewUploadCoordinator(channelStore, log)
	draftStore := storagedata.NewRedisDraftStore(d.RedisClient)
	draftFlow := storagebiz.NewDraftFlow(draftStore, uploadCoordinator, log)

	cleanupTTL := time.Duration(config.Bot.FileAutoDeleteMinutes) * time.Minute
	engine := retrievalbiz.NewEngine(
		linkUseCase,
		deliverer,
		sessionRepo,
		pool,
		analyticsUseCase,
		cleanupTTL,
		log,
	)

	// Initialize services
	userService := userservice.NewUserService(userUseCase, linkUseCase, referralUseCase, analyticsUseCase, log)
	linkService := linkservice.NewLinkService(linkUseCase, uploadCoordinator, draftFlow, engine, analyticsUseCase, config.Bot.Username, log)
	statsService := analyticsservice.NewStatsService(analyticsUseCase, linkUseCase, userUseCase, log)

	// Initialize server
	httpServer := server.NewHTTPServer(config, log, userUseCase, userService, linkService, statsService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
