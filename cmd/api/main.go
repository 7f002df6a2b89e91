package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tugas-api/internal/config"
	"github.com/noah-isme/tugas-api/internal/database"
	"github.com/noah-isme/tugas-api/internal/events"
	"github.com/noah-isme/tugas-api/internal/handler"
	"github.com/noah-isme/tugas-api/internal/lock"
	"github.com/noah-isme/tugas-api/internal/logging"
	"github.com/noah-isme/tugas-api/internal/middleware"
	"github.com/noah-isme/tugas-api/internal/repository"
	"github.com/noah-isme/tugas-api/internal/router"
	"github.com/noah-isme/tugas-api/internal/service"
	cloud "github.com/noah-isme/tugas-api/pkg/cloudinary"
	"github.com/noah-isme/tugas-api/pkg/localfs"
	objectstore "github.com/noah-isme/tugas-api/pkg/minio"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.IsDevelopment(),
		File:   cfg.LogFile,
	}, cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient, cfg.EventPrefix+":lock", cfg.LockTTL, logger)
	} else {
		logger.Warn().Msg("redis not configured, submission locks are process local")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	bus := events.NewBus(redisClient, natsConn, cfg.EventPrefix, logger)
	go consumeEvents(ctx, bus, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes())*cfg.UploadMaxFiles + 1024*1024,
	})

	storage, err := newStorage(ctx, cfg, app, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to create file storage")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	uploads := service.UploadLimits{MaxBytes: cfg.UploadMaxBytes(), MaxFiles: cfg.UploadMaxFiles}

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, validate, logger)
	submissionDeps := service.SubmissionDependencies{
		Submissions: submissionRepo,
		Assignments: assignmentRepo,
		Students:    studentRepo,
		Storage:     storage,
		Locker:      locker,
		Activity:    activityService,
		Events:      bus,
		Validator:   validate,
		Uploads:     uploads,
		LockWait:    cfg.LockWait,
		Logger:      logger,
	}
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Assignments: assignmentRepo,
		Classes:     classRepo,
		Students:    studentRepo,
		Storage:     storage,
		Activity:    activityService,
		Validator:   validate,
		Uploads:     uploads,
		Logger:      logger,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(service.NewSubmissionService(submissionDeps), logger),
		GradingHandler:    handler.NewGradingHandler(service.NewGradingService(submissionDeps), logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		SubmitLimiter:     middleware.RateLimit("submission", cfg.SubmitRateLimit, cfg.SubmitRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

// newStorage selects the file storage backend. The local driver also serves
// stored files from the application.
func newStorage(ctx context.Context, cfg config.Config, app *fiber.App, logger zerolog.Logger) (service.FileStorage, error) {
	switch cfg.StorageDriver {
	case config.StorageCloudinary:
		return cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	case config.StorageMinio:
		return objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		}, logger)
	default:
		storage, err := localfs.New(cfg.LocalStorageDir, cfg.LocalStorageBaseURL)
		if err != nil {
			return nil, err
		}
		app.Static(cfg.LocalStorageBaseURL, storage.Root())
		return storage, nil
	}
}

func consumeEvents(ctx context.Context, bus *events.Bus, logger zerolog.Logger) {
	eventLogger := logger.With().Str("component", "event_consumer").Logger()
	err := bus.Consume(ctx, func(event events.Event) {
		eventLogger.Info().
			Str("type", event.Type).
			Str("source", event.Source).
			Uint("submission_id", event.SubmissionID).
			Str("status", event.Status).
			Msg("submission event received")
	})
	if err != nil && ctx.Err() == nil {
		eventLogger.Error().Err(err).Msg("event consumer stopped")
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
