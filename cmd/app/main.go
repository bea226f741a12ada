package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"copytrade/configs"
	"copytrade/internal/adapter"
	"copytrade/internal/adapter/delta"
	"copytrade/internal/adapter/kafka"
	"copytrade/internal/adapter/redis"
	"copytrade/internal/adapter/telegram"
	"copytrade/internal/database"
	httpdelivery "copytrade/internal/delivery/http"
	"copytrade/internal/domain"
	"copytrade/internal/infra"
	"copytrade/internal/middleware"
	"copytrade/internal/repository"
	"copytrade/internal/service"
	"copytrade/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := configs.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	brokerRepo := repository.NewBrokerAccountRepository(db)
	followerRepo := repository.NewFollowerRepository(db)
	copyTradeRepo := repository.NewCopyTradeRepository(db)

	exchange := delta.NewClient(cfg.Delta.BaseURL, cfg.Delta.Timeout, delta.WithMaxRetries(cfg.Delta.MaxRetries))

	var priceCache domain.PriceCache = service.NewMemoryPriceCache()
	if cfg.Redis.Addr != "" {
		client, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logrus.WithError(err).Warn("[WARN] Redis unavailable, using in-process price cache")
		} else {
			defer client.Close()
			priceCache = redis.NewPriceCache(client)
			logrus.WithField("addr", cfg.Redis.Addr).Info("[OK] Redis price cache connected")
		}
	}
	prices := service.NewMarketPriceService(exchange, priceCache, cfg.Sizing.PriceCacheTTL)

	var sinks []domain.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, kafka.NewCopyResultPublisher(cfg.Kafka.Brokers, cfg.Kafka.CopyEventsTopic))
		logrus.WithField("topic", cfg.Kafka.CopyEventsTopic).Info("[OK] Copy results published to Kafka")
	}
	if notifier := telegram.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Timezone, cfg.Telegram.NotifyAll); notifier.Enabled() {
		sinks = append(sinks, notifier)
		logrus.Info("[OK] Telegram notifications enabled")
	}
	publisher := adapter.NewMultiPublisher(sinks...)
	if publisher != nil {
		defer publisher.Close()
	}

	source := domain.SourceFill
	if cfg.Monitor.TradeSource == "positions" {
		source = domain.SourcePosition
	}
	copier := usecase.NewCopyTradingService(
		brokerRepo,
		followerRepo,
		copyTradeRepo,
		exchange,
		prices,
		publisher,
		service.NewSizer(cfg.Sizing.SizeIncrement),
		usecase.Options{TradeSource: source, FillsPageSize: cfg.Monitor.FillsPageSize},
	)

	var streams infra.StreamFactory
	if cfg.Delta.StreamEnabled {
		streams = func(b *domain.BrokerAccount, nudge func()) infra.StreamRunner {
			return delta.NewStream(cfg.Delta.WebSocketURL, b.Credentials, nudge, logrus.WithField("broker", b.AccountName))
		}
	}
	monitor := infra.NewMonitor(ctx, copier, streams, infra.MonitorOptions{
		PollInterval: cfg.Monitor.PollInterval,
		PollJitter:   cfg.Monitor.PollJitter,
		MaxBackoff:   cfg.Monitor.MaxBackoff,
		TickTimeout:  cfg.Monitor.TickTimeout,
	})
	defer monitor.StopAll()

	scheduler := infra.NewScheduler(brokerRepo, monitor, cfg.Monitor.SyncSchedule)
	if err := scheduler.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	auth := middleware.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	e := echo.New()
	e.HideBanner = true
	httpdelivery.SetupRoutes(e, &httpdelivery.RouterConfig{
		Auth:             auth,
		AuthHandler:      httpdelivery.NewAuthHandler(userRepo, auth, cfg.IsProduction()),
		BrokerHandler:    httpdelivery.NewBrokerHandler(brokerRepo, monitor),
		FollowerHandler:  httpdelivery.NewFollowerHandler(followerRepo, brokerRepo, copyTradeRepo),
		CopyTradeHandler: httpdelivery.NewCopyTradeHandler(copier, brokerRepo, followerRepo, copyTradeRepo, cfg.Monitor.TickTimeout),
	})

	api := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Monitor.TickTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ops := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.OpsPort),
		Handler:      opsRouter(db, monitor),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logrus.WithFields(logrus.Fields{
		"api":         api.Addr,
		"ops":         ops.Addr,
		"env":         cfg.Server.Env,
		"source":      source,
		"poll":        cfg.Monitor.PollInterval,
		"stream":      cfg.Delta.StreamEnabled,
		"delta_url":   cfg.Delta.BaseURL,
		"max_retries": cfg.Delta.MaxRetries,
	}).Info("Copy trading service starting")

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{api, ops} {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(api.Shutdown(shutdownCtx), ops.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("ERROR: Server stopped with error")
	}
	logrus.Info("[OK] Server exited gracefully")
}

func setupLogger(cfg configs.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func opsRouter(db interface{ Ping(context.Context) error }, monitor *infra.Monitor) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/health", handleHealth(db))
	r.Get("/status", handleStatus(monitor))
	return r
}

func handleHealth(db interface{ Ping(context.Context) error }) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		dbStatus := "healthy"
		if err := db.Ping(ctx); err != nil {
			status, code, dbStatus = "unhealthy", http.StatusServiceUnavailable, "unhealthy"
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"service":   "copytrade",
			"database":  dbStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func handleStatus(monitor *infra.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loops := monitor.Status()
		writeJSON(w, http.StatusOK, map[string]any{
			"monitored": len(loops),
			"loops":     loops,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
