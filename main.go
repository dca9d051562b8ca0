package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"sync-service/internal/clock"
	"sync-service/internal/config"
	"sync-service/internal/db"
	"sync-service/internal/engine"
	"sync-service/internal/grpcserver"
	"sync-service/internal/handlers"
	"sync-service/internal/joincode"
	"sync-service/internal/middleware"
	"sync-service/internal/observability"
	"sync-service/internal/rabbitmq"
	"sync-service/internal/registry"
	"sync-service/internal/repositories"
	"sync-service/internal/telemetry"
	"sync-service/internal/ws"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	shutdownTracer, err := observability.InitTracer(context.Background(), cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.sync", cfg.ServiceName, cfg.Environment)

	var database *sqlx.DB
	var historyRepo repositories.PlayHistoryRepository = repositories.NoopPlayHistoryRepo{}
	if cfg.DBDSN != "" {
		database, err = db.Connect(cfg.DBDSN)
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		defer database.Close()
		historyRepo = repositories.NewPlayHistoryRepo(database)
	} else {
		log.Println("play history disabled: empty DB_DSN")
	}
	historyRecorder := repositories.NewHistoryRecorder(historyRepo, 256)

	var limiter middleware.Counter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		limiter = rdb
	} else {
		log.Println("rate limiting disabled: empty REDIS_ADDR")
	}

	groups := registry.New(joincode.NewGenerator(cfg.JoinURLBase), clock.System{}, cfg.ScheduleLookahead)
	hub := ws.NewHub()
	syncEngine := engine.New(groups, hub, clock.System{}, historyRecorder, auditEmitter)

	groupHandler := handlers.NewGroupHandler(syncEngine, historyRepo)
	wsHandler := ws.NewHandler(hub, syncEngine, cfg.AllowedOrigins)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(handlers.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID", "X-Device-Id"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	var pinger handlers.Pinger
	if database != nil {
		pinger = database
	}
	router.GET("/healthz", handlers.Health(groups))
	router.GET("/readyz", handlers.Ready(pinger))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := router.Group("/", middleware.RateLimiter(limiter, middleware.RateLimits{
		WSPerMinute:  cfg.RateLimitWSPerMin,
		APIPerMinute: cfg.RateLimitAPIPerMin,
	}))
	limited.GET("/ws", wsHandler.Handle)
	limited.GET("/groups/:group_id/state", groupHandler.GetState)
	limited.GET("/groups/:group_id/history", groupHandler.GetHistory)

	handlers.RegisterDebugRoutes(router, groups, auditEmitter, cfg.DebugRoutes)

	grpcSrv := grpcserver.New()
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("failed to listen grpc: %v", err)
	}
	go func() {
		log.Printf("grpc health listening port=%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Printf("http listening port=%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	grpcSrv.SetServing(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.Stop()
	historyRecorder.Close()
	if err := shutdownTracer(ctx); err != nil {
		log.Printf("tracer shutdown: %v", err)
	}
}
