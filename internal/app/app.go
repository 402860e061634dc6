// Package app wires configuration into repositories, services and the task
// client shared by the server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	config "github.com/avataralabs/queuelabs-sub000/configs"
	"github.com/avataralabs/queuelabs-sub000/internal/lease"
	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/publisher"
	"github.com/avataralabs/queuelabs-sub000/internal/queue"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
)

type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  asynq.RedisClientOpt
	Client *asynq.Client

	Leases   *lease.Manager
	Assign   service.AssignService
	Contents service.ContentService
	Slots    service.SlotService
	Profiles service.ProfileService
	Dispatch service.DispatchService
}

// Open connects to Postgres and Redis and builds every service. The caller
// owns Close.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}

	blobs, err := service.NewR2Service(ctx, cfg.R2)
	if err != nil {
		db.Close()
		return nil, err
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	enqueuer := queue.NewEnqueuer(client, "")

	contentRepo := repository.NewContentRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	historyRepo := repository.NewUploadHistoryRepository(db)

	resolver := scheduling.NewResolver(cfg.Location(), cfg.Scheduling.HorizonDays)
	leases := lease.NewManager(contentRepo, cfg.Dispatch.LeaseStaleAfter)

	assign := service.NewAssignService(contentRepo, slotRepo, profileRepo, resolver,
		cfg.Scheduling.ReserveMaxAttempts, enqueuer, nil)

	a := &App{
		Config:   cfg,
		DB:       db,
		Redis:    redisConn,
		Client:   client,
		Leases:   leases,
		Assign:   assign,
		Contents: service.NewContentService(contentRepo, slotRepo, profileRepo, historyRepo, assign, blobs, nil),
		Slots:    service.NewSlotService(slotRepo, profileRepo),
		Profiles: service.NewProfileService(profileRepo, cfg.SecretKey),
		Dispatch: service.NewDispatchService(contentRepo, slotRepo, profileRepo, historyRepo,
			leases, NewPublisher(cfg), blobs, enqueuer, service.DispatchOptions{
				BatchSize:         cfg.Dispatch.BatchSize,
				Concurrency:       cfg.Dispatch.Concurrency,
				ProcessingTimeout: cfg.Dispatch.ProcessingTimeout,
				PublishTimeout:    cfg.Dispatch.PublishTimeout,
				Retry:             cfg.Dispatch.Retry,
			}),
	}
	return a, nil
}

// NewPublisher routes youtube to the Data API when Google credentials are
// configured and everything else to the webhook, if any.
func NewPublisher(cfg *config.Config) publisher.Publisher {
	var fallback publisher.Publisher
	if cfg.Publish.WebhookURL != "" {
		fallback = publisher.NewWebhookPublisher(cfg.Publish.WebhookURL, cfg.Publish.WebhookToken,
			cfg.Publish.RatePerSec, nil)
	} else {
		slog.Warn("no publish webhook configured")
	}

	router := publisher.NewRouter(fallback)
	if cfg.GoogleClientID != "" {
		router.Handle(models.PlatformYoutube,
			publisher.NewYoutubePublisher(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.SecretKey))
	}
	return router
}

func (a *App) Close() {
	if err := a.Client.Close(); err != nil {
		slog.Error("failed to close task client", "error", err)
	}
	if err := a.DB.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
