package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/avataralabs/queuelabs-sub000/configs"
	"github.com/avataralabs/queuelabs-sub000/internal/api/handlers"
	"github.com/avataralabs/queuelabs-sub000/internal/api/middleware"
	"github.com/avataralabs/queuelabs-sub000/internal/app"
	job "github.com/avataralabs/queuelabs-sub000/internal/jobs"
	"github.com/avataralabs/queuelabs-sub000/internal/logger"
	"github.com/avataralabs/queuelabs-sub000/internal/metrics"
	"github.com/avataralabs/queuelabs-sub000/internal/queue"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(logger.New(cfg.LogLevel))

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if err := repository.Migrate(a.DB); err != nil {
		a.Close()
		log.Fatalf("Failed to migrate database: %v", err)
	}

	server := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				logger.FromContext(c.UserContext(), slog.Default()).Error("request failed", "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	server.Use(requestid.New())
	server.Use(middleware.RequestContext())
	server.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	server.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	server.Get("/healthz", func(c *fiber.Ctx) error {
		if err := a.DB.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(cfg.SecretKey, cfg.CookieName)
	api := server.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	handlers.Register(api, handlers.Handlers{
		Content:  handlers.NewContentHandler(a.Contents),
		Slots:    handlers.NewSlotHandler(a.Slots),
		Profiles: handlers.NewProfileHandler(a.Profiles, a.Assign),
		Dispatch: handlers.NewDispatchHandler(a.Dispatch),
	})

	// cron jobs
	dispatchJob := job.NewDispatchJob(a.Dispatch, 0)
	c := cron.New()
	if err := dispatchJob.Schedule(c, cfg.Dispatch.Cron); err != nil {
		a.Close()
		log.Fatalf("Failed to schedule dispatch job: %v", err)
	}
	c.Start()

	// queue
	worker := asynq.NewServer(a.Redis, asynq.Config{
		Concurrency: cfg.Dispatch.Concurrency,
		Logger:      newAsynqLogger(),
	})
	if err := worker.Start(queue.NewServeMux(queue.NewQueue(a.Dispatch))); err != nil {
		a.Close()
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "addr", cfg.HTTPAddr)

	gracefulShutdown(server, c, worker, a)
}

func gracefulShutdown(server *fiber.App, c *cron.Cron, worker *asynq.Server, a *app.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	c.Stop()
	worker.Shutdown()
	if err := server.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	a.Close()
	slog.Info("server shutdown complete")
}
