package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kodelab-id/kodelab-api/internal/config"
	"github.com/kodelab-id/kodelab-api/internal/database"
	"github.com/kodelab-id/kodelab-api/internal/handler"
	"github.com/kodelab-id/kodelab-api/internal/middleware"
	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/repository"
	"github.com/kodelab-id/kodelab-api/internal/router"
	"github.com/kodelab-id/kodelab-api/internal/service"
	"github.com/kodelab-id/kodelab-api/pkg/ai"
	"github.com/kodelab-id/kodelab-api/pkg/judge"
	"github.com/kodelab-id/kodelab-api/pkg/lock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Professor{},
		&models.Activity{},
		&models.TestCase{},
		&models.Submission{},
		&models.TestCaseResult{},
		&models.FeedbackRecord{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats not configured, grading jobs run in-process")
	}

	executor, err := buildExecutor(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create judge executor: %v", err)
	}

	var generator ai.Generator
	if cfg.OpenAIAPIKey != "" {
		openaiGen, genErr := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if genErr != nil {
			log.Fatalf("failed to create feedback generator: %v", genErr)
		}
		generator = openaiGen
	} else {
		logger.Warn().Msg("openai not configured, feedback generation disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	activityRepo := repository.NewActivityRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	bus := service.NewGradingBus(natsConn, logger)
	locks := lock.NewManager(redisClient)
	runner := service.NewCaseRunner(executor, logger)

	activityService := service.NewActivityService(activityRepo, redisClient, validate, logger)
	gradingService := service.NewGradingService(submissionRepo, activityRepo, runner, executor, bus, locks, validate, logger, service.GradingConfig{
		Workers: cfg.GradingWorkers,
		LockTTL: cfg.GradingLockTTL,
	})
	feedbackService := service.NewFeedbackService(submissionRepo, activityRepo, generator, bus, logger, service.FeedbackConfig{
		MaxRetries:  cfg.FeedbackMaxRetries,
		RetryDelay:  cfg.FeedbackRetryDelay,
		PollDelay:   cfg.FeedbackPollDelay,
		PollRetries: cfg.FeedbackPollRetries,
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := gradingService.Start(workerCtx); err != nil {
		log.Fatalf("failed to start grading workers: %v", err)
	}
	if err := feedbackService.Start(workerCtx); err != nil {
		log.Fatalf("failed to start feedback worker: %v", err)
	}

	seedService := service.NewSeedService(activityRepo, cfg.SeedEnabled, cfg.SeedToken, logger)

	activityHandler := handler.NewActivityHandler(activityService, logger)
	submissionHandler := handler.NewSubmissionHandler(gradingService, feedbackService, logger)
	seedHandler := handler.NewSeedHandler(seedService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ActivityHandler:   activityHandler,
		SubmissionHandler: submissionHandler,
		SeedHandler:       seedHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorkers)
}

func buildExecutor(cfg config.Config, logger zerolog.Logger) (judge.Executor, error) {
	switch cfg.JudgeProvider {
	case "docker":
		return judge.NewDockerExecutor(judge.DockerConfig{
			Host:          cfg.DockerHost,
			WorkspaceRoot: cfg.WorkspaceRoot,
			TimeLimit:     cfg.JudgeTimeLimit,
			MemoryLimitKB: cfg.JudgeMemoryKB,
			CPUShares:     cfg.CPUShares,
			Logger:        logger,
		})
	default:
		return judge.NewJudge0Client(judge.Judge0Config{
			BaseURL:       cfg.Judge0URL,
			APIKey:        cfg.Judge0APIKey,
			APIHost:       cfg.Judge0APIHost,
			Timeout:       cfg.JudgeHTTPTimeout,
			TimeLimit:     cfg.JudgeTimeLimit,
			MemoryLimitKB: cfg.JudgeMemoryKB,
			Logger:        logger,
		})
	}
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
