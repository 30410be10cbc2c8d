package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xlend/config"
	"xlend/core/events"
	"xlend/core/state"
	nativecommon "xlend/native/common"
	"xlend/native/lending"
	"xlend/observability"
	"xlend/observability/logging"
	"xlend/rpc"
	"xlend/storage"
)

const moduleLending = "lending"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("xlendd", cfg.Environment, logging.FileOptions{Path: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, cfg, logger); err != nil {
		logger.Error("xlendd exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("xlendd stopped")
}

func run(ctx context.Context, configFile string, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.Open(cfg.DatabaseBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := state.EnsureStateVersion(db); err != nil {
		return err
	}

	log, err := events.OpenLog(db, cfg.EventLogCapacity)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	log.SetErrorHandler(func(err error) {
		logger.Error("event log write failed", slog.Any("error", err))
	})
	node, err := newNode(cfg, db, log, observability.Lending())
	if err != nil {
		return err
	}
	logger.Info("lending engine ready",
		slog.String("backend", cfg.DatabaseBackend),
		slog.Bool("paused", cfg.Lending.Paused),
		logging.AddressField("admin", cfg.Lending.Admin))

	go watchReload(ctx, configFile, node.pauses, logger)

	if cfg.MetricsAddress != "" {
		go serveMetrics(ctx, cfg.MetricsAddress, logger)
	}

	srv := rpc.NewServer(node.engine, log, rpc.Options{
		Logger:        logger,
		RateLimit:     cfg.RateLimitPerSecond,
		RateBurst:     cfg.RateLimitBurst,
		ReadTimeout:   time.Duration(cfg.RPCReadTimeout) * time.Second,
		WriteTimeout:  time.Duration(cfg.RPCWriteTimeout) * time.Second,
		ExposeMetrics: cfg.MetricsAddress == "",
	})
	return srv.ListenAndServe(ctx, cfg.RPCAddress)
}

type node struct {
	engine *lending.Engine
	pauses *nativecommon.PauseSet
}

// newNode wires the engine over db and seeds it from cfg on first start.
// Restarting against an initialised database keeps the stored state.
func newNode(cfg *config.Config, db storage.Database, log *events.Log, metrics *observability.LendingMetrics) (*node, error) {
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, err
	}
	pauses := nativecommon.NewPauseSet()
	pauses.Set(moduleLending, cfg.Lending.Paused)

	engine := lending.NewEngine()
	engine.SetState(state.NewLendingState(state.NewManager(db)))
	engine.SetPauses(pauses)
	if metrics != nil {
		engine.SetEmitter(events.MultiEmitter{log, metrics})
		engine.SetRecorder(metrics)
	} else {
		engine.SetEmitter(log)
	}
	if err := engine.Initialize(genesis); err != nil && !errors.Is(err, lending.ErrAlreadyInitialized) {
		return nil, fmt.Errorf("initialize lending: %w", err)
	}
	return &node{engine: engine, pauses: pauses}, nil
}

// watchReload re-reads the pause switch from the configuration file on SIGHUP.
func watchReload(ctx context.Context, path string, pauses *nativecommon.PauseSet, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(path)
			if err != nil {
				logger.Warn("config reload failed", slog.Any("error", err))
				continue
			}
			pauses.Set(moduleLending, cfg.Lending.Paused)
			logger.Info("config reloaded", slog.Bool("paused", cfg.Lending.Paused))
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", slog.Any("error", err))
	}
}
