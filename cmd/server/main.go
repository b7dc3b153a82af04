package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bakate/avionics/internal/gateway"
	"github.com/bakate/avionics/internal/handler"
	"github.com/bakate/avionics/internal/outbox"
	"github.com/bakate/avionics/internal/query"
	"github.com/bakate/avionics/internal/reaper"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/internal/service"
	"github.com/bakate/avionics/pkg/config"
	"github.com/bakate/avionics/pkg/database"
	"github.com/bakate/avionics/pkg/logger"
	"github.com/bakate/avionics/pkg/middleware"
	pkgredis "github.com/bakate/avionics/pkg/redis"
	"github.com/bakate/avionics/pkg/telemetry"
)

// exit codes per spec §6: 0 clean stop, 1 fatal init failure, 2 uncaught
// fatal. The only uncaught-fatal path left after init is a panic, which
// gin's Recovery middleware turns into a 500 rather than a process exit,
// so in practice this binary only ever uses 0 or 1.
const (
	exitOK        = 0
	exitInitFatal = 1
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Infow("starting avionics", "version", cfg.App.Version, "env", cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Warnw("telemetry init failed, continuing without tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			appLog.Warnw("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := database.New(ctx, &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     cfg.OTel.ServiceName,
	})
	if err != nil {
		appLog.Errorw("database connection failed", "error", err)
		os.Exit(exitInitFatal)
	}
	defer db.Close()
	pool := db.Pool()

	rdb, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Warnw("redis connection failed, idempotency middleware disabled", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	// Repositories, unit of work, and the gateway contracts (spec §4.D/§4.E/§4.K).
	uow := repository.NewUnitOfWork(pool)
	outboxRepo := repository.NewPostgresOutboxRepository(pool)
	bookingRepo := repository.NewPostgresBookingRepository(pool, outboxRepo)
	inventoryRepo := repository.NewPostgresInventoryRepository(pool, outboxRepo)
	auditRepo := repository.NewPostgresAuditLogRepository(pool)

	paymentGateway := gateway.NewHTTPPaymentGateway(cfg.Payment.BaseURL, cfg.Payment.ApiKey)
	notificationGateway := gateway.NewHTTPNotificationGateway(cfg.Notification.BaseURL, cfg.Notification.ApiKey)

	// Use-case facades (spec §4.F/§4.G).
	inventoryService := service.NewInventoryService(uow, inventoryRepo)
	bookingService := service.NewBookingService(uow, bookingRepo, inventoryService, paymentGateway, cfg.Booking.HoldTTL)
	bookingService.SetAuditLog(auditRepo)

	queries := query.New(pool)

	// Background workers: outbox publisher (spec §4.H) and expiration
	// reaper (spec §4.I). Both run independently of the HTTP server.
	publisher := outbox.NewPublisher(outboxRepo, outbox.Config{
		PollInterval:  cfg.Booking.OutboxPollInterval,
		BatchSize:     cfg.Booking.OutboxBatchSize,
		StaleAfter:    5 * time.Minute,
		MaxRetries:    cfg.Booking.OutboxMaxRetries,
		RetryDelays:   cfg.Booking.OutboxRetryDelays,
		ShutdownGrace: cfg.Server.ShutdownGrace,
		Concurrency:   10,
	})
	publisher.Register("BookingCancelled", outbox.SeatReleaseConsumer(bookingRepo, inventoryService))
	publisher.Register("BookingExpired", outbox.SeatReleaseConsumer(bookingRepo, inventoryService))
	publisher.Register("TicketIssued", outbox.TicketNotificationConsumer(bookingRepo, notificationGateway))

	reap := reaper.New(uow, bookingRepo, inventoryService, reaper.Config{
		ScanInterval: cfg.Booking.ReapInterval,
		BatchSize:    cfg.Booking.ReapBatchSize,
	})

	go publisher.Run(ctx)
	go reap.Run(ctx)

	// HTTP surface (spec §6).
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	router.Use(middleware.CORS(cfg.Cors.Origins))

	healthHandler := handler.NewHealthHandler(db, rdb, reap, publisher, cfg.Server.HealthTimeout)
	bookingHandler := handler.NewBookingHandler(bookingService, queries)
	webhookHandler := handler.NewWebhookHandler(bookingService, cfg.Webhook.Secret)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	api := router.Group("/api")
	{
		bookingsWrite := api.Group("/bookings")
		if rdb != nil {
			bookingsWrite.Use(middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(rdb)))
		}
		bookingsWrite.POST("", bookingHandler.Create)
		bookingsWrite.POST("/:id/confirm", bookingHandler.Confirm)
		bookingsWrite.POST("/:id/cancel", bookingHandler.Cancel)

		bookingsRead := api.Group("/bookings")
		bookingsRead.GET("", bookingHandler.List)
		bookingsRead.GET("/pnr/:pnr", bookingHandler.GetByPnr)
		bookingsRead.GET("/passenger/:id", bookingHandler.PassengerHistory)
		bookingsRead.GET("/search", bookingHandler.Search)

		api.POST("/webhooks/polar", webhookHandler.Handle)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Infow("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Errorw("server shutdown did not complete cleanly", "error", err)
	}

	reap.Stop()
	publisher.Stop()

	appLog.Info("shutdown complete")
	os.Exit(exitOK)
}
