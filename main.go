package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nufaill/fluffyCare-sub004/internal/config"
	"github.com/nufaill/fluffyCare-sub004/internal/db"
	grpcserver "github.com/nufaill/fluffyCare-sub004/internal/grpc"
	"github.com/nufaill/fluffyCare-sub004/internal/handlers"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/middleware"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
	"github.com/nufaill/fluffyCare-sub004/internal/rabbitmq"
	"github.com/nufaill/fluffyCare-sub004/internal/repositories"
	"github.com/nufaill/fluffyCare-sub004/internal/services"
	"github.com/nufaill/fluffyCare-sub004/internal/telemetry"
	"github.com/nufaill/fluffyCare-sub004/internal/tracing"
	"github.com/nufaill/fluffyCare-sub004/internal/ws"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; every authenticated request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.AppEnv, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing init failed: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Error("failed to connect to db: %v", err)
		os.Exit(1)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher mode=%s %s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.AppEnv)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	retry := services.DefaultRetryPolicy()
	if cfg.SyncRetryAttempts > 0 {
		retry.Attempts = cfg.SyncRetryAttempts
	}
	chatService := services.NewChatService(chatRepo, messageRepo, services.WithRetryPolicy(retry))
	resyncEvery := cfg.ResyncInterval
	if resyncEvery <= 0 {
		resyncEvery = 5 * time.Second
	}
	go chatService.RunResyncWorker(ctx, resyncEvery)

	hub := ws.NewHub()
	wsCfg := ws.DefaultConfig()
	if cfg.TypingRatePerSec > 0 {
		wsCfg.TypingRatePerSec = cfg.TypingRatePerSec
	}
	gateway := ws.NewGatewayHandler(hub, chatService, middleware.Verifier(cfg.JWTSecret), wsCfg)
	chatHandler := handlers.NewChatHandler(chatService, hub, audit)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader, observability.ConnectionIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName), observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterHealthRoutes(router, database, hub.ConnectionCount)
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)
	router.GET("/ws", gateway.Handle)

	api := router.Group("/api/chats", middleware.AuthMiddleware(cfg.JWTSecret))
	chatHandler.Register(api)

	health := grpcserver.NewHealthServer(database, 10*time.Second)
	go health.Watch(ctx)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen: %v", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc health listening on :%s", cfg.GRPCPort)
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc server error: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("chat service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown: %v", err)
	}
	hub.Close()
	health.Stop()
	chatService.ResyncPending(shutdownCtx)
	if pending := chatService.PendingSyncs(); pending > 0 {
		logger.Warn("%d chat summaries still pending at shutdown", pending)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown: %v", err)
		}
	}
}
