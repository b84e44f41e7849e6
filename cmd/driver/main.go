package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openride/dispatch/internal/driver"
	"github.com/openride/dispatch/internal/livestate"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/config"
	"github.com/openride/dispatch/pkg/database"
	"github.com/openride/dispatch/pkg/eventbus"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/middleware"
	"github.com/openride/dispatch/pkg/redis"
	"github.com/openride/dispatch/pkg/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName = "driver"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName, config.DefaultDriverAddress)
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close(pool)

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	bus, err := eventbus.Connect(cfg.MessagingURL, serviceName+"-service")
	if err != nil {
		logger.Fatal("event bus connection failed", zap.Error(err))
	}
	defer bus.Close()

	live := livestate.NewStore(redisClient.Client)
	hub := ws.NewHub()

	drivers := driver.NewRepository(pool)
	statuses := driver.NewStatusRepository(pool)
	locations := driver.NewLocationService(live)
	lifecycle := driver.NewLifecycle(statuses, live, bus, hub, driver.RandomETA{})
	handler := driver.NewHandler(drivers, lifecycle, locations, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eventbus.Consume(ctx, bus, eventbus.SubjectDriverAssigned, lifecycle.HandleAssigned); err != nil {
		logger.Fatal("subscription failed", zap.String("subject", eventbus.SubjectDriverAssigned), zap.Error(err))
	}
	if err := bus.AnswerHealth(serviceName); err != nil {
		logger.Warn("bus health responder failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.Metrics(serviceName))

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/readyz", common.ReadinessProbe(serviceName, version, map[string]func() error{
		"postgres": func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		"redis": func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(pingCtx).Err()
		},
		"bus": func() error {
			if !bus.Connected() {
				return eventbus.ErrNotConnected
			}
			return nil
		},
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("driver service listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
