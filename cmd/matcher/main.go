package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openride/dispatch/internal/livestate"
	"github.com/openride/dispatch/internal/matcher"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/config"
	"github.com/openride/dispatch/pkg/eventbus"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/middleware"
	"github.com/openride/dispatch/pkg/redis"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName = "matcher"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName, config.DefaultMatcherAddress)
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()

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
	service := matcher.NewService(live, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eventbus.Consume(ctx, bus, eventbus.SubjectRideRequested, service.HandleRideRequested); err != nil {
		logger.Fatal("subscription failed", zap.String("subject", eventbus.SubjectRideRequested), zap.Error(err))
	}
	if err := bus.AnswerHealth(serviceName); err != nil {
		logger.Warn("bus health responder failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger(serviceName))

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/readyz", common.ReadinessProbe(serviceName, version, map[string]func() error{
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

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("matcher service listening", zap.String("address", cfg.Server.Address))
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
