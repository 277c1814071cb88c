package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"clubhours/internal/blob"
	"clubhours/internal/config"
	"clubhours/internal/logging"
	"clubhours/internal/mirror"
	"clubhours/internal/photo"
	"clubhours/internal/queue"
	"clubhours/internal/store"
	"clubhours/internal/worker"
)

// Worker mirrors approved proof photos and migrates legacy inline photos
// into blob storage on a schedule.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)
	log := logging.Component(logger, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" || cfg.StoreBackend == "memory" {
		log.Fatal("the worker needs the redis queue and postgres; with memory backends the api runs jobs itself")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()
	st := store.NewPostgres(db.Client)

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, "", logging.Component(logger, "queue"))

	var uploader photo.Uploader
	if cfg.StorageConfigured() {
		uploader = blob.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	} else {
		log.Warn("blob storage not configured, photo migration disabled")
	}
	keeper := photo.NewKeeper(uploader, cfg.ProofPhotoBucket, logging.Component(logger, "photo"))

	mc := mirror.New(cfg.UploadEndpoint, false)
	if mc.Skip {
		log.Warn("upload endpoint not configured, proof mirror jobs are dropped")
	} else if err := mc.Health(ctx); err != nil {
		log.WithError(err).Warn("upload endpoint not reachable, mirror jobs will fail until it recovers")
	} else {
		log.WithField("endpoint", mc.Endpoint).Info("upload endpoint connected")
	}

	w := worker.New(st, mc, keeper, log)

	if uploader != nil {
		sched, err := w.Schedule(cfg.PhotoMigrationSchedule)
		if err != nil {
			log.WithError(err).WithField("schedule", cfg.PhotoMigrationSchedule).Fatal("invalid photo migration schedule")
		}
		sched.Start()
		defer sched.Stop()
		log.WithField("schedule", cfg.PhotoMigrationSchedule).Info("photo migration scheduled")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.WithError(err).Fatal("queue consume init failed")
	}
	w.Run(ctx, messages)
}
