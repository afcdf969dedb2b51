package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/migrations"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

const queueMaxRetry = 5

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("failed to open database", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		fatal("database is unreachable", err)
	}

	if cfg.AutoMigrate {
		if err := migrations.Run(context.Background(), db); err != nil {
			fatal("failed to run migrations", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer redisClient.Close()

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "error", err)
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostGroupRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	rateRepo := repository.NewRateWindowRepository(redisClient)

	dispatcher := queue.NewDispatcher(client, queueMaxRetry, cfg.Scheduler.StaleAfter, cfg.Scheduler.StaleAfter/2)

	r2Service := service.NewR2Service(cfg.R2)
	plans := service.NewPlanProvider(subscriptionRepo, cfg.Limits.FreePending, cfg.Limits.ProPending)
	mediaService := service.NewMediaService(postRepo, mediaRepo, socialAccountRepo, r2Service, dispatcher, cfg.Limits.UploadURLTTL)
	postService := service.NewPostService(postRepo, socialAccountRepo, plans, mediaService, dispatcher)
	publishService := service.NewPublishService(postRepo, socialAccountRepo, mediaService,
		service.NewRelayClient(cfg.Publish.RelayBaseURL, &http.Client{}),
		cfg.SecretKey,
		service.PublishConfig{
			Concurrency:    cfg.Publish.Concurrency,
			Timeout:        cfg.Publish.Timeout,
			MaxAttempts:    cfg.Publish.MaxAttempts,
			InitialBackoff: cfg.Publish.InitialBackoff,
		})
	apiKeyService := service.NewApiKeyService(apiKeyRepository)
	limiter := service.NewRateLimiter(rateRepo, cfg.Limits.RateRequests, cfg.Limits.RateWindow)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())
	api.Use(rateLimitMiddleware.RateLimit())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.GetPost)
	api.Put("/posts/:id", post.UpdatePost)
	api.Delete("/posts/:id", post.RemovePost)
	api.Get("/quota", post.Quota)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/posts/:id/media", media.RegisterUpload)
	api.Post("/media/:id/complete", media.CompleteUpload)

	// cron jobs
	scheduler := job.NewSchedulerJob(postRepo, dispatcher, cfg.Scheduler.BatchSize, cfg.Scheduler.StaleAfter)

	c := cron.New()
	if err := c.AddFunc("@every "+cfg.Scheduler.Interval.String(), scheduler.Run); err != nil {
		fatal("invalid scheduler interval", err)
	}
	c.Start()

	//queue
	worker := queue.NewQueue(publishService, mediaService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.Scheduler.WorkerConcur,
	})

	go func() {
		mux := asynq.NewServeMux()
		worker.Register(mux)

		slog.Info("starting the asynq server")
		if err := server.Run(mux); err != nil {
			fatal("could not start asynq server", err)
		}
	}()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			fatal("failed to start server", err)
		}
	}()
	slog.Info("server is running", "port", cfg.Port)

	gracefulShutdown(app, c, server)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	slog.Info("closing database connection")
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

func gracefulShutdown(app *fiber.App, c *cron.Cron, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	c.Stop()
	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	server.Shutdown()

	slog.Info("server shutdown complete")
}
