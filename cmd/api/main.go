package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"clubhours/internal/accounts"
	"clubhours/internal/announcements"
	"clubhours/internal/auth"
	"clubhours/internal/blob"
	"clubhours/internal/config"
	"clubhours/internal/events"
	"clubhours/internal/guard"
	"clubhours/internal/handler"
	"clubhours/internal/hours"
	"clubhours/internal/httpmiddleware"
	"clubhours/internal/logging"
	"clubhours/internal/meetings"
	"clubhours/internal/metrics"
	"clubhours/internal/mirror"
	"clubhours/internal/photo"
	"clubhours/internal/queue"
	"clubhours/internal/store"
	"clubhours/internal/store/memory"
	"clubhours/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App, logger *logrus.Logger) error {
	log := logging.Component(logger, "api")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st store.Store
		db *store.DB
	)
	if cfg.StoreBackend == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		st = memory.New()
	} else {
		var err error
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx, db.Client); err != nil {
				return err
			}
			log.Info("schema migrated")
		}
		st = store.NewPostgres(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "", logging.Component(logger, "queue"))
	}

	var keys guard.Keys
	if cfg.GuardBackend == "memory" {
		keys = guard.NewMemoryKeys()
	} else {
		keys = guard.NewRedisKeys(redisClient.Client, "")
	}
	revoked := guard.NewDenylist(keys)

	var blobs *blob.Client
	var uploader photo.Uploader
	if cfg.StorageConfigured() {
		blobs = blob.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		uploader = blobs
		log.WithField("bucket", cfg.ProofPhotoBucket).Info("proof photo storage configured")
	} else {
		log.Info("proof photo storage not configured (SUPABASE_URL / SUPABASE_SERVICE_KEY not set)")
	}
	keeper := photo.NewKeeper(uploader, cfg.ProofPhotoBucket, logging.Component(logger, "photo"))

	tokens := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	hoursSvc := hours.NewService(st, keeper, q, guard.NewInFlight(keys, 30*time.Second, logging.Component(logger, "guard")), logging.Component(logger, "hours"))

	// The memory queue only reaches consumers in this process.
	if cfg.QueueBackend == "memory" {
		sched, err := startLocalWorker(ctx, cfg, st, q, keeper, uploader != nil, logger)
		if err != nil {
			return err
		}
		if sched != nil {
			defer sched.Stop()
		}
	}

	services := handler.Services{
		Accounts:      accounts.NewService(st, tokens, revoked, logging.Component(logger, "accounts")),
		Hours:         hoursSvc,
		Meetings:      meetings.NewService(st, logging.Component(logger, "meetings")),
		Events:        events.NewService(st, logging.Component(logger, "events")),
		Announcements: announcements.NewService(st.Announcements(), logging.Component(logger, "announcements")),
		Tokens:        tokens,
		Revoked:       revoked,
	}
	if blobs != nil {
		services.Blobs = blobs
	}
	h := handler.New(services, logging.Component(logger, "http"))

	limiter := httpmiddleware.NewIPLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin, logging.Component(logger, "ratelimit"))
	limiter.StartSweeper(ctx, 5*time.Minute, 15*time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(log, "/healthz", "/metrics"))
	r.Use(metrics.GinMiddleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || (!redisHealthy && needsRedis(cfg)) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "redis": redisHealthy, "db": dbHealthy})
	})

	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}

// startLocalWorker consumes q in this process and, when blob storage is
// configured, schedules the photo migration. The returned scheduler is
// already started; it is nil without storage.
func startLocalWorker(ctx context.Context, cfg config.App, st store.Store, q queue.Queue, keeper *photo.Keeper, storage bool, logger *logrus.Logger) (*cron.Cron, error) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return nil, err
	}
	log := logging.Component(logger, "worker")
	w := worker.New(st, mirror.New(cfg.UploadEndpoint, false), keeper, log)
	go w.Run(ctx, msgs)

	if !storage {
		return nil, nil
	}
	sched, err := w.Schedule(cfg.PhotoMigrationSchedule)
	if err != nil {
		return nil, err
	}
	sched.Start()
	log.WithField("schedule", cfg.PhotoMigrationSchedule).Info("photo migration scheduled in process")
	return sched, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func needsRedis(cfg config.App) bool {
	return cfg.QueueBackend != "memory" || cfg.GuardBackend != "memory"
}
