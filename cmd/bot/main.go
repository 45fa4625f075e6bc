package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotline/internal/booking"
	"slotline/internal/bot"
	"slotline/internal/config"
	"slotline/internal/database"
	"slotline/internal/events"
	"slotline/internal/metrics"
	"slotline/internal/schedule"
	"slotline/internal/session"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SLOTLINE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Telegram.BotToken == "" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}
	if cfg.Telegram.OrgSlug == "" {
		logger.Fatal().Msg("set telegram.org_slug in config")
	}

	db, err := database.New(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	org, err := db.GetOrganizationBySlug(ctx, cfg.Telegram.OrgSlug)
	if err != nil {
		logger.Fatal().Err(err).Str("slug", cfg.Telegram.OrgSlug).Msg("load organization")
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", org.Timezone).Msg("load organization timezone")
	}

	var rdb *redis.Client
	sessions := session.Store(session.NewMemoryStore(cfg.SessionTTL()))
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		primary := session.NewRedisStore(rdb, cfg.SessionTTL())
		fallback := session.NewMemoryStore(cfg.SessionTTL())
		sessions = session.NewFailoverStore(primary, fallback, &logger)
	}

	bus := events.NewBus()
	logEvent := func(ev events.Event) {
		logger.Info().
			Str("event", ev.Type).
			Str("reference", ev.Appointment.Reference).
			Int64("staff_id", ev.Appointment.StaffID).
			Msg("appointment event")
	}
	for _, evType := range []string{events.AppointmentCreated, events.AppointmentRescheduled, events.AppointmentCanceled} {
		bus.Subscribe(evType, logEvent)
	}

	resolver := schedule.NewResolver(db)
	bookings := booking.NewService(db, resolver, bus, &logger)
	bookings.SetMaxAdvance(cfg.MaxAdvance())

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot api")
	}
	api.Debug = cfg.Telegram.Debug

	flow := bot.NewFlow(bookings, db, org, loc, cfg.DefaultDuration())
	b := bot.New(api, flow, sessions, logger)

	digest := bot.NewDigest(b, db, org, loc, cfg.Telegram.AdminChatID)
	digest.Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := api.GetUpdatesChan(updateCfg)

	logger.Info().Str("org", org.Slug).Msg("booking bot started")
	b.Run(ctx, updates)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
