// Command aiswarmd is the coordination kernel: it persists agent, task,
// and memory state in SQLite, fans out lifecycle events over typed
// buses, and exposes everything to MCP clients over stdio and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aiswarm/swarmd/internal/alert"
	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/config"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/cron"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/mcp"
	"github.com/aiswarm/swarmd/internal/persistence"
	"github.com/aiswarm/swarmd/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s [-workdir DIR] [-quiet]   Start the coordination kernel

FLAGS:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  AISWARM_HOME             Overrides the config home directory
  TELEGRAM_TOKEN           Bot token for the optional Telegram alert channel
`)
}

func main() {
	workdir := flag.String("workdir", ".", "working directory the kernel coordinates agents within")
	quiet := flag.Bool("quiet", false, "log to file only, not stdout")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *workdir, *quiet); err != nil {
		slog.Error("aiswarmd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, workdir string, quiet bool) error {
	cfg, err := config.Load(workdir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quiet)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	logger.Info("aiswarmd starting", "version", Version, "working_directory", cfg.WorkingDirectory)

	watcher := config.NewWatcher(cfg, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = persistence.DefaultDBPath(cfg.WorkingDirectory)
	}
	store, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	fullMode := parseFullMode(cfg.EventBus.FullMode)
	busOpts := bus.Options{Capacity: cfg.EventBus.Capacity, FullMode: fullMode, Logger: logger}
	taskBus := events.NewTaskBus(busOpts)
	defer taskBus.Close()
	agentBus := events.NewAgentBus(busOpts)
	defer agentBus.Close()
	memoryBus := events.NewMemoryBus(busOpts)
	defer memoryBus.Close()

	realClock := clock.New()
	eventLogger := coordination.NewEventLogger(realClock, logger)
	agents := coordination.NewAgentService(store, agentBus, eventLogger, realClock)
	tasks := coordination.NewTaskService(store, taskBus, eventLogger, realClock)
	memories := coordination.NewMemoryService(store, memoryBus, eventLogger, realClock)

	otelProvider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:    cfg.Telemetry.Enabled,
		Exporter:   cfg.Telemetry.Exporter,
		Endpoint:   cfg.Telemetry.Endpoint,
		ServiceName: "aiswarmd",
		SampleRate: cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := telemetry.NewMetrics(otelProvider.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	handlers, err := mcp.NewHandlers(agents, tasks, memories, logger, otelProvider.Tracer, metrics)
	if err != nil {
		return fmt.Errorf("init mcp handlers: %w", err)
	}

	sched, err := cron.NewScheduler(cron.Config{
		Agents:           agents,
		Logger:           logger,
		SweepSpec:        cron.DefaultSweepSpec,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	})
	if err != nil {
		return fmt.Errorf("init cron scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop(context.Background())

	telegram := alert.NewTelegramChannel(alert.Config{
		Enabled:  cfg.Alert.Enabled,
		BotToken: cfg.Alert.BotToken,
		ChatID:   cfg.Alert.ChatID,
	}, agentBus, taskBus, logger)
	go func() {
		if err := telegram.Start(ctx); err != nil {
			logger.Error("telegram alert channel stopped", "error", err)
		}
	}()

	httpServer := mcp.NewHTTPServer(handlers, logger)
	port, err := httpServer.Listen(ctx, cfg.HTTPPortStart, cfg.HTTPPortEnd)
	if err != nil {
		return fmt.Errorf("start http transport: %w", err)
	}
	logger.Info("mcp http transport listening", "port", port)

	stdioErr := make(chan error, 1)
	go func() {
		stdioErr <- mcp.ServeStdio(ctx, handlers, os.Stdin, os.Stdout, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("aiswarmd shutting down")
		return nil
	case err := <-stdioErr:
		return err
	}
}

func parseFullMode(mode string) bus.FullMode {
	switch mode {
	case "DropOldest":
		return bus.FullModeDropOldest
	case "DropNewest":
		return bus.FullModeDropNewest
	case "DropWrite":
		return bus.FullModeDropWrite
	default:
		return bus.FullModeWait
	}
}
