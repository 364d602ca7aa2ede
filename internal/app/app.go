package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dinepoint/dinepoint/internal/config"
	"github.com/dinepoint/dinepoint/internal/db"
	internalhttp "github.com/dinepoint/dinepoint/internal/http"
	"github.com/dinepoint/dinepoint/internal/http/api/front"
	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/dinepoint/dinepoint/internal/logging"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/mail"
	"github.com/dinepoint/dinepoint/internal/profile"
	"github.com/dinepoint/dinepoint/internal/review"
	"github.com/dinepoint/dinepoint/internal/schedule"
	"github.com/dinepoint/dinepoint/internal/settings"
	"github.com/dinepoint/dinepoint/internal/voucher"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const settingsRefreshJobID = "maintenance:settings-refresh"

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conf, err := config.Load(config.ResolveConfigPath(cfg.ConfigPath), cfg.EnvFile)
	if err != nil {
		return err
	}
	conn, err := db.Open(conf.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.Info("database migrated")
	return nil
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conf, err := config.Load(configPath, cfg.EnvFile)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(conf.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	conn, err := db.Open(conf.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.Refresh(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	loc := conf.Server.Location()
	clock := func() time.Time { return time.Now().In(loc) }
	scheduler := schedule.NewCronScheduler(loc)

	sessions, closeSessions, err := buildSessionStore(ctx, conf.Redis, conn)
	if err != nil {
		return err
	}
	defer closeSessions()
	sender, err := mail.New(conf.SMTP)
	if err != nil {
		return err
	}

	ledger := loyalty.NewLedger(conn)
	vouchers := voucher.NewEngine(conn, ledger, voucher.WithClock(clock), voucher.WithScheduler(scheduler))
	services := front.Services{
		Identity: identity.NewProvider(conn, conf.JWT, identity.WithSessionStore(sessions), identity.WithSender(sender)),
		Profiles: profile.NewService(conn, ledger, vouchers, profile.WithClock(clock)),
		Ledger:   ledger,
		Vouchers: vouchers,
		Reviews:  review.NewEngine(conn, ledger, review.WithClock(clock)),
	}

	if errJobs := registerMaintenance(ctx, scheduler, conn); errJobs != nil {
		return errJobs
	}
	// Reset codes live in the database even when sessions are in redis.
	identity.NewRetentionCleaner(conn).Start(ctx)
	restored, errRestore := vouchers.RestoreSchedules(ctx)
	if errRestore != nil {
		return errRestore
	}
	scheduler.Start()
	log.WithField("schedules", restored).Info("voucher schedules restored")

	engine := gin.New()
	engine.Use(logging.GinLogger(), gin.Recovery(), internalhttp.CORSMiddleware(conf.Server.AllowOrigins))
	engine.GET("/healthz", healthHandler(conn))
	front.RegisterFrontRoutes(engine, services)

	server := &http.Server{
		Addr:              conf.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("starting dinepoint api on %s with config=%s", conf.Server.Addr, configPath)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case errServe := <-serveErr:
		if errServe != nil {
			return fmt.Errorf("http server: %w", errServe)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("http server shutdown")
	}
	if errStop := scheduler.Stop(shutdownCtx); errStop != nil {
		log.WithError(errStop).Warn("scheduler stop")
	}
	return nil
}

// buildSessionStore uses redis when configured and the database otherwise.
func buildSessionStore(ctx context.Context, cfg config.RedisConfig, conn *gorm.DB) (identity.SessionStore, func(), error) {
	if !cfg.Enabled() {
		return identity.NewDBSessionStore(conn), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, errPing)
	}
	log.WithField("addr", cfg.Addr).Info("using redis session store")
	return identity.NewRedisSessionStore(client, ""), func() { _ = client.Close() }, nil
}

// registerMaintenance schedules a periodic reload of runtime settings.
func registerMaintenance(ctx context.Context, scheduler schedule.Scheduler, conn *gorm.DB) error {
	return scheduler.Add(settingsRefreshJobID, schedule.Every(time.Minute), func() {
		if errRefresh := settings.Refresh(ctx, conn); errRefresh != nil {
			log.WithError(errRefresh).Warn("refresh settings")
		}
	})
}

// healthHandler reports whether the database answers.
func healthHandler(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, errDB := conn.DB()
		if errDB == nil {
			errDB = sqlDB.PingContext(c.Request.Context())
		}
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
