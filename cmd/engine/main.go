package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bookcore/internal/api"
	"bookcore/internal/config"
	"bookcore/internal/db"
	"bookcore/internal/events"
	"bookcore/internal/lifecycle"
	"bookcore/internal/lock"
	"bookcore/internal/metrics"
	"bookcore/internal/report"
)

func main() {
	auditExport := flag.String("audit-export", "", "write every table to this XLSX file and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ENGINE_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	database, err := db.NewDB(cfg.Database.Path, &logger, db.WithBusyTimeout(cfg.BusyTimeout()))
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	exporter := report.NewExporter(database, database, loc, logger)

	if *auditExport != "" {
		if err := writeAuditExport(exporter, *auditExport); err != nil {
			logger.Fatal().Err(err).Msg("audit export failed")
		}
		logger.Info().Str("path", *auditExport).Msg("Audit export written")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = lock.NewRedis(rdb, cfg.LockTTL(), logger)
		logger.Info().Str("addr", cfg.Redis.Address).Msg("Using redis reservation lock")
	}

	bus := events.NewEventBus(logger)
	for _, et := range []string{events.ReservationCreated, events.ReservationRescheduled, events.ReservationStatusChanged, events.CalendarUpdated} {
		bus.Subscribe(et, func(ev events.Event) error {
			logger.Debug().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("Event published")
			return nil
		})
	}

	svc := lifecycle.NewService(database, bus, locker, &logger,
		lifecycle.WithLocation(loc),
		lifecycle.WithLockTimeout(cfg.LockTimeout()),
	)

	err = config.WatchResources(ctx, cfg.Engine.ResourcesConfigPath, cfg.ReloadInterval(), logger, func(rc *config.ResourcesConfig) {
		logger.Info().Str("config", rc.String()).Msg("Resources config loaded")
		if _, err := database.SyncResourcesFromConfig(ctx, rc); err != nil {
			logger.Error().Err(err).Msg("Failed to sync resources config")
		}
	})
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Engine.ResourcesConfigPath).Msg("Resources config not loaded; serving stored resources")
	}

	if cfg.Backup.Enabled {
		backups := db.NewBackupService(database, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention())
		go backups.Start(ctx, time.Minute)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Config{
		Port:               cfg.API.Port,
		APIKey:             cfg.API.APIKey,
		RateLimitPerSecond: cfg.API.RateLimitPerSecond,
		RateLimitBurst:     cfg.API.RateLimitBurst,
	}, svc, database, exporter, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("HTTP API shutdown error")
		}
	}()

	logger.Info().Str("timezone", loc.String()).Msg("Booking engine started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("HTTP API error")
	}
	logger.Info().Msg("Booking engine stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(cfg.LogLevel()).With().Timestamp().Logger()
}

func writeAuditExport(exporter *report.Exporter, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := exporter.ExportTables(context.Background(), f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
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
	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
