package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rescuedispatch/config"
	"rescuedispatch/controllers"
	"rescuedispatch/database"
	"rescuedispatch/interfaces"
	"rescuedispatch/middleware"
	"rescuedispatch/repositories"
	"rescuedispatch/routes"
	"rescuedispatch/services"
	"rescuedispatch/websocket"
	"rescuedispatch/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type eventBus interface {
	interfaces.EventPublisher
	interfaces.EventSubscriber
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]controllers.HealthCheck)

	// Stores
	var (
		alertStore interfaces.AlertStore
		userStore  interface {
			interfaces.Directory
			interfaces.Counters
		}
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		memoryUsers := repositories.NewMemoryUserRepository()
		if cfg.SeedDemo {
			if err := database.SeedUsers(ctx, memoryUsers, database.DemoUsers()); err != nil {
				logrus.Fatal("Failed to seed demo users: ", err)
			}
		}
		alertStore = repositories.NewMemoryAlertRepository()
		userStore = memoryUsers
		checks["mongodb"] = nil
		logrus.Warn("Using in-memory store, alerts are lost on restart")
	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logrus.Fatal("Failed to connect to database: ", err)
		}
		defer database.Disconnect()

		if cfg.SeedDemo {
			if err := database.RunSeeders(ctx, db); err != nil {
				logrus.Warnf("Seeder warning: %v", err)
			}
		}
		alertStore = repositories.NewAlertRepository(db)
		userStore = repositories.NewUserRepository(db)
		checks["mongodb"] = database.Ping
	}

	// Redis backs rate limiting, the event bus and the sweep lock
	redisClient, err := config.InitRedis(cfg)
	if err != nil {
		logrus.Fatal("Invalid REDIS_URL: ", err)
	}
	var (
		events      eventBus
		windowStore middleware.WindowStore
	)
	if redisClient != nil {
		defer redisClient.Close()
		events = services.NewRedisEventBus(redisClient)
		windowStore = middleware.NewRedisWindowStore(redisClient)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		events = services.NewLocalEventBus()
		windowStore = middleware.NewMemoryWindowStore()
		checks["redis"] = nil
		logrus.Warn("REDIS_URL not set, using in-process event bus and rate limiter")
	}

	notifier := config.InitNotificationService(ctx, cfg)

	dispatch := services.NewDispatchService(alertStore, userStore, userStore, notifier, events, services.DispatchConfig{
		DispatchRadiusKm: cfg.DispatchRadiusKm,
		AlertTTL:         cfg.AlertTTL,
	})

	// WebSocket hub fed from the event bus
	hub := websocket.NewHub()
	go hub.Run()
	go hub.ConsumeEvents(ctx, events)

	expiryWorker := startExpiryWorker(cfg, dispatch, redisClient)

	router := routes.SetupRoutes(routes.Dependencies{
		Config:      cfg,
		Dispatch:    dispatch,
		Hub:         hub,
		WindowStore: windowStore,
		Checks:      checks,
	})

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"storeDriver": cfg.StoreDriver,
			"authMode":    cfg.AuthMode,
		}).Info("Rescue dispatch server starting")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Error("Server forced to shutdown: ", err)
	}
	if expiryWorker != nil {
		expiryWorker.Stop()
	}
	hub.Stop()
	dispatch.Wait()

	logrus.Info("Server shutdown complete")
}

func startExpiryWorker(cfg *config.Config, dispatch *services.DispatchService, redisClient *redis.Client) *workers.ExpiryWorker {
	if !cfg.ExpirySweepEnabled {
		logrus.Info("Expiry sweep disabled")
		return nil
	}
	worker := workers.NewExpiryWorker(dispatch, redisClient, workers.ExpiryWorkerConfig{
		Interval: cfg.ExpirySweepInterval,
	})
	if err := worker.Start(); err != nil {
		logrus.Fatal("Failed to start expiry worker: ", err)
	}
	return worker
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.SetOutput(os.Stdout)
}
