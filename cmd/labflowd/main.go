package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/rom8726/labflow"
	"github.com/rom8726/labflow/api"
	"github.com/rom8726/labflow/blob"
	"github.com/rom8726/labflow/internal/config"
	"github.com/rom8726/labflow/plugins/api/cancel"
	"github.com/rom8726/labflow/plugins/api/correction"
	"github.com/rom8726/labflow/plugins/api/decision"
	"github.com/rom8726/labflow/plugins/api/entry"
	"github.com/rom8726/labflow/plugins/api/samples"
	"github.com/rom8726/labflow/plugins/engine/audit"
	"github.com/rom8726/labflow/plugins/engine/metrics"
	"github.com/rom8726/labflow/plugins/engine/notifications"
	reworkdepth "github.com/rom8726/labflow/plugins/engine/rework-depth"
	"github.com/rom8726/labflow/plugins/engine/telemetry"
	"github.com/rom8726/labflow/plugins/engine/validate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "labflowd").Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("labflowd stopped with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeOpts, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	files, err := blob.Open(ctx, blob.Config{
		Driver:     blob.Driver(cfg.BlobDriver),
		S3Bucket:   cfg.BlobS3Bucket,
		S3Region:   cfg.BlobS3Region,
		S3Endpoint: cfg.BlobS3Endpoint,
		PathStyle:  cfg.BlobS3PathStyle,
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	logger.Info().Str("driver", string(files.Driver())).Msg("blob store ready")

	opts := append(storeOpts,
		labflow.WithEngineLogger(logger),
		labflow.WithEngineFileResolver(files),
	)
	engine := labflow.NewEngine(nil, opts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	shutdownTracer, err := initTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	engine.RegisterPlugin(metrics.New(metrics.NewPrometheusCollector(registry)))
	engine.RegisterPlugin(telemetry.New(otel.Tracer("labflow")))
	engine.RegisterPlugin(validate.New())
	engine.RegisterPlugin(audit.New(audit.NewZerologWriter(logger)))
	engine.RegisterPlugin(reworkdepth.New(engine))

	if cfg.NATSURL != "" {
		channel, conn, err := notifications.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer conn.Drain() //nolint:errcheck

		engine.RegisterPlugin(notifications.New(channel))
		logger.Info().Str("url", cfg.NATSURL).Msg("nats notifications enabled")
	}

	server := api.NewServer(engine,
		entry.New(engine, actorFromHeaders),
		decision.New(engine, actorFromHeaders),
		cancel.New(engine, actorFromHeaders),
		samples.New(engine, actorFromHeaders),
		correction.New(engine, actorFromHeaders),
	)

	mux := server.Mux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]labflow.EngineOption, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := labflow.RunMigrations(ctx, pool); err != nil {
			pool.Close()

			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("postgres store ready")

		return []labflow.EngineOption{
			labflow.WithEngineStore(labflow.NewStore(pool)),
			labflow.WithEngineTxManager(labflow.NewTxManager(pool)),
		}, pool.Close, nil

	case config.StoreSQLite:
		store, err := labflow.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")

		closeStore := func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("close sqlite")
			}
		}

		return []labflow.EngineOption{
			labflow.WithEngineStore(store),
			labflow.WithEngineTxManager(labflow.NewSQLiteTxManager(store)),
		}, closeStore, nil

	default:
		logger.Warn().Msg("running on the in-memory store, data is lost on restart")

		return nil, func() {}, nil
	}
}
