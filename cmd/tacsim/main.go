package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tacmap/tacsim/internal/broadcast"
	"github.com/tacmap/tacsim/internal/combat"
	"github.com/tacmap/tacsim/internal/config"
	"github.com/tacmap/tacsim/internal/database"
	"github.com/tacmap/tacsim/internal/dispatcher"
	"github.com/tacmap/tacsim/internal/engine"
	"github.com/tacmap/tacsim/internal/influx"
	"github.com/tacmap/tacsim/internal/logging"
	"github.com/tacmap/tacsim/internal/monitor"
	intOtel "github.com/tacmap/tacsim/internal/otel"
	"github.com/tacmap/tacsim/internal/parser"
	"github.com/tacmap/tacsim/internal/pathfind"
	"github.com/tacmap/tacsim/internal/session"
	"github.com/tacmap/tacsim/internal/storage"
	"github.com/tacmap/tacsim/internal/transport/websocket"
	"github.com/tacmap/tacsim/internal/worker"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const (
	shutdownTimeout = 15 * time.Second
	statusFileName  = "status.json"
)

func main() {
	configDir := os.Getenv("TACSIM_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}

	args := os.Args[1:]
	if len(args) > 0 && strings.ToLower(args[0]) == "history" {
		if err := runHistory(configDir, args[1:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// activeSessions reports the hub's room count once the hub is published in ref.
// Log records written before that carry no extra attributes.
func activeSessions(ref *atomic.Pointer[websocket.Hub]) logging.ContextProvider {
	return func() []slog.Attr {
		hub := ref.Load()
		if hub == nil {
			return nil
		}
		return []slog.Attr{slog.Int("activeSessions", hub.ActiveRooms())}
	}
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "TRACE":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// closer is one shutdown step, run in reverse registration order.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func run(configDir string) error {
	start := time.Now()
	cfgErr := config.Load(configDir)

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logFilePath := logging.LogFilePath(logsDir, "tacsim", start)
	if _, err := os.Stat(logFilePath); err == nil {
		_ = os.Rename(logFilePath, logFilePath+".old")
	}
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var closers []closer
	shutdown := func(logger *slog.Logger) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(ctx); err != nil {
				logger.Error("shutdown step failed", "step", closers[i].name, "error", err)
			}
		}
	}
	closers = append(closers, closer{"log file", func(context.Context) error { return logFile.Close() }})

	// OpenTelemetry
	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: Version,
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      logFile,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up OpenTelemetry: %w", err)
	}
	closers = append(closers, closer{"otel", otelProvider.Shutdown})

	// Graylog
	var gelfOut io.Writer
	var gelfErr error
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGelfWriter(config.GetString("graylog.address"), "tacsim")
		if err != nil {
			gelfErr = err
		} else {
			gelfOut = w
		}
	}

	// Logging
	var hubRef atomic.Pointer[websocket.Hub]
	slogManager := logging.NewSlogManager()
	slogManager.SetContextProvider(activeSessions(&hubRef))
	slogManager.Setup(logFile, config.GetString("logLevel"), otelProvider.LoggerProvider(), gelfOut)
	logger := slogManager.Logger()
	closers = append(closers, closer{"log flush", slogManager.Flush})

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: logFile, TimeFormat: time.RFC3339, NoColor: true}).
		Level(zerologLevel(config.GetString("logLevel"))).
		With().Timestamp().Logger()

	logger.Info("Starting tacsim",
		"version", Version,
		"buildDate", BuildDate,
		"logFile", logFilePath,
		"otel", otelProvider.Enabled())
	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults", "error", cfgErr)
	}
	if gelfErr != nil {
		logger.Warn("Graylog unavailable", "error", gelfErr)
	}

	// Persistence
	storageCfg := config.GetStorageConfig()
	dbManager := database.NewManager(zlog)
	if err := dbManager.Connect(storageCfg, config.GetDBConfig()); err != nil {
		shutdown(logger)
		return err
	}
	closers = append(closers, closer{"database", func(context.Context) error { return dbManager.Close() }})

	backend, err := storage.NewBackend(storageCfg, dbManager.DB)
	if err != nil {
		shutdown(logger)
		return err
	}
	if err := backend.Init(); err != nil {
		shutdown(logger)
		return fmt.Errorf("failed to init %s storage: %w", storageCfg.Type, err)
	}
	closers = append(closers, closer{"storage", func(context.Context) error { return backend.Close() }})
	if storageCfg.Type == "sqlite" && storageCfg.SQLitePath == "" {
		dumpPath := filepath.Join(logsDir, "tacsim_"+start.Format("20060102_150405")+".db")
		closers = append(closers, closer{"sqlite dump", func(context.Context) error {
			logger.Info("Dumping in-memory database", "path", dumpPath)
			return dbManager.DumpMemoryToDisk(dumpPath)
		}})
	}
	logger.Info("Storage ready", "type", storageCfg.Type)

	// InfluxDB
	var telemetry engine.Telemetry
	var statusSink monitor.StatusSink
	influxManager := influx.NewManager(zlog, config.GetInfluxConfig())
	if err := influxManager.Connect(context.Background()); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			logger.Warn("InfluxDB telemetry disabled", "error", err)
		}
	} else {
		telemetry = influxManager
		statusSink = influxManager
		closers = append(closers, closer{"influx", func(context.Context) error { return influxManager.Close() }})
	}

	// Inbound routing
	events, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		shutdown(logger)
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	closers = append(closers, closer{"dispatcher", func(context.Context) error { events.Close(); return nil }})

	serverCfg := config.GetServerConfig()
	hub := websocket.NewHub(websocket.Config{
		AllowedOrigin: serverCfg.AllowedOrigin,
		ClientBuffer:  serverCfg.ClientBuffer,
	}, events, logger.With("component", "transport"))
	hubRef.Store(hub)

	// Simulation
	engineCfg := config.GetEngineConfig()
	catalog, err := combat.LoadCatalog(engineCfg.CatalogFile)
	if err != nil {
		shutdown(logger)
		return err
	}
	battleLog := broadcast.NewBattleLog(hub, logger)
	resolver := combat.NewResolver(combat.Dependencies{
		Catalog:          catalog,
		Namer:            combat.NewNamer(engineCfg.Locale),
		Publisher:        hub,
		BattleLog:        battleLog,
		Logger:           logger.With("component", "combat"),
		HeavyLossPercent: engineCfg.HeavyLossPercent,
	})

	sim, err := engine.New(engine.Config{
		TickInterval:     engineCfg.TickInterval,
		DecisionInterval: engineCfg.DecisionInterval,
		HistoryInterval:  engineCfg.HistoryInterval,
		MoveStep:         engineCfg.MoveStep,
		RetreatThreshold: engineCfg.RetreatThreshold,
		RetreatOffset:    engineCfg.RetreatOffset,
		ArchiveHistory:   storageCfg.ArchiveHistory,
	}, engine.Dependencies{
		Store:     session.NewStore(engineCfg.HistoryEntries),
		Planner:   pathfind.NewPlanner(engineCfg.GridResolution, logger.With("component", "pathfind")),
		Resolver:  resolver,
		Publisher: hub,
		BattleLog: battleLog,
		Storage:   backend,
		Telemetry: telemetry,
		Logger:    logger.With("component", "engine"),
	})
	if err != nil {
		shutdown(logger)
		return fmt.Errorf("failed to create engine: %w", err)
	}

	workers := worker.NewManager(worker.Dependencies{
		Engine: sim,
		Parser: parser.NewParser(logger),
		Logger: logger.With("component", "worker"),
	})
	workers.RegisterHandlers(events)
	logger.Debug("Registered commands", "commands", events.Commands())

	// Status monitor
	statusMonitor := monitor.NewService(monitor.Dependencies{
		Engine:     sim,
		Sink:       statusSink,
		Logger:     logger.With("component", "monitor"),
		Interval:   serverCfg.StatusInterval,
		StatusFile: filepath.Join(logsDir, statusFileName),
	})
	if err := statusMonitor.Start(); err != nil {
		shutdown(logger)
		return err
	}
	closers = append(closers, closer{"monitor", func(context.Context) error { statusMonitor.Stop(); return nil }})
	closers = append(closers, closer{"sessions", func(ctx context.Context) error {
		var errs []error
		for _, id := range sim.Sessions() {
			errs = append(errs, sim.UnregisterSession(ctx, id))
		}
		return errors.Join(errs...)
	}})

	// Tick loop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tickDone := make(chan error, 1)
	go func() { tickDone <- sim.Run(ctx) }()
	closers = append(closers, closer{"engine", func(context.Context) error { stop(); return <-tickDone }})

	// HTTP
	srv := &http.Server{
		Addr:              serverCfg.Listen,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", serverCfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	closers = append(closers, closer{"http", func(ctx context.Context) error {
		hub.Close()
		return srv.Shutdown(ctx)
	}})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down", "uptime", time.Since(start).Round(time.Second))
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdown(logger)
	return runErr
}
