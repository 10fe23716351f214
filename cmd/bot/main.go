package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonbot/internal/availability"
	"salonbot/internal/booking"
	"salonbot/internal/bot"
	"salonbot/internal/catalog"
	"salonbot/internal/config"
	"salonbot/internal/database"
	"salonbot/internal/dialogue"
	"salonbot/internal/events"
	"salonbot/internal/metrics"
	"salonbot/internal/nlu"
	"salonbot/internal/session"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type notifierFunc func(ctx context.Context, userID int64, text string) error

func (f notifierFunc) SendMessage(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file, using process environment")
	}

	configPath := os.Getenv("SALONBOT_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()
	db.SetLocation(loc)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	lookup := catalog.NewLookup(db)
	if rdb != nil && cfg.CatalogCacheTTL() > 0 {
		lookup.UseRedisCache(rdb, cfg.CatalogCacheTTL())
	}

	salon, err := config.LoadSalonConfig(cfg.SalonConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.SalonConfigPath).Msg("failed to load salon config")
	}
	schedule, err := availability.ScheduleFromConfig(salon)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid salon schedule")
	}
	engine := availability.NewEngine(db, schedule, loc)

	watcher := &config.SalonWatcher{
		Path:     cfg.SalonConfigPath,
		Interval: 30 * time.Second,
		Logger:   &logger,
		Apply: func(sc *config.SalonConfig) error {
			s, err := availability.ScheduleFromConfig(sc)
			if err != nil {
				return fmt.Errorf("schedule: %w", err)
			}
			if err := db.SyncCatalog(ctx, sc.CatalogServices()); err != nil {
				return fmt.Errorf("sync catalog: %w", err)
			}
			engine.SetSchedule(s)
			if err := lookup.Invalidate(ctx); err != nil {
				logger.Warn().Err(err).Msg("salon reload: cache invalidation failed")
			}
			metrics.IncConfigReload("applied")
			logger.Info().Str("salon", sc.String()).Msg("Salon config applied")
			return nil
		},
		Reject: func(err error) {
			metrics.IncConfigReload("rejected")
			logger.Error().Err(err).Msg("Salon config rejected, keeping previous")
		},
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load salon config")
	}

	sessions, history := buildSessionStores(cfg, db, rdb, &logger)

	serviceNames := func(ctx context.Context) []string {
		svcs, err := lookup.ListActive(ctx)
		if err != nil {
			return nil
		}
		names := make([]string, len(svcs))
		for i, s := range svcs {
			names[i] = s.Name
		}
		return names
	}

	var (
		extractor nlu.Extractor
		responder nlu.Responder
	)
	switch cfg.NLU.Provider {
	case "gemini":
		g, err := nlu.NewGemini(ctx, cfg.NLU.APIKey, cfg.NLU.Model, serviceNames, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create gemini client")
		}
		defer g.Close()
		extractor, responder = g, g
	default:
		extractor = nlu.NewKeyword(serviceNames)
	}

	bus := events.NewEventBus(&logger)

	var (
		b    *bot.Bot
		orch *dialogue.Orchestrator
	)
	supervisor := session.NewSupervisor(cfg.SessionTimeout(), func(userID int64) {
		orch.Expire(ctx, userID)
	})
	defer supervisor.Stop()

	orch = dialogue.NewOrchestrator(dialogue.Deps{
		Sessions:  sessions,
		History:   history,
		Catalog:   lookup,
		Engine:    engine,
		Booking:   booking.NewTransaction(lookup, engine, db),
		NLU:       extractor,
		Responder: responder,
		Notifier: notifierFunc(func(ctx context.Context, userID int64, text string) error {
			return b.SendMessage(ctx, userID, text)
		}),
		Timers: supervisor,
		Events: bus,
	}, dialogue.Options{
		SessionTimeout: cfg.SessionTimeout(),
		NLUTimeout:     cfg.NLUTimeout(),
		StoreTimeout:   cfg.StoreTimeout(),
	}, &logger)

	b, err = bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, orch, db, bus, bot.Options{
		Managers:      cfg.Managers,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
		ExportDays:    cfg.Export.Days,
		Location:      loc,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}
	b.SubscribeManagerNotifications(bus)

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
		go watchPendingTimers(ctx, supervisor)
	}

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	if cfg.Reminders.Enabled {
		b.StartReminders(ctx, cfg.Reminders.Hour)
	}

	logger.Info().Str("nlu", cfg.NLU.Provider).Str("sessions", cfg.Session.Backend).Msg("Salon bot started")
	b.Start(ctx)
	logger.Info().Msg("Salon bot stopped")
}

func buildSessionStores(cfg *config.Config, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) (session.Store, dialogue.History) {
	var history dialogue.History = session.NewMemoryHistory(cfg.Session.HistoryLength)
	if rdb != nil {
		history = session.NewRedisHistory(rdb, cfg.Session.HistoryLength)
	}

	switch cfg.Session.Backend {
	case "memory":
		return session.NewMemoryStore(), history
	case "redis":
		if rdb == nil {
			logger.Fatal().Msg("session backend redis requires redis.address")
		}
		// Keys outlive the inactivity window; stale sessions are reported on the next message.
		redisStore := session.NewRedisStore(rdb, 2*cfg.SessionTimeout())
		return session.NewFailoverStore(redisStore, db, logger), history
	default:
		return db, history
	}
}

func watchPendingTimers(ctx context.Context, s *session.Supervisor) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetPendingTimers(s.Pending())
		}
	}
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
		if err := db.Ping(ctxPing); err != nil {
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
