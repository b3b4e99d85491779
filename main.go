package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcbridge/toolgate/internal/app"
	"github.com/arcbridge/toolgate/internal/config"
	"github.com/arcbridge/toolgate/internal/logger"
	"github.com/arcbridge/toolgate/internal/router"
	"github.com/arcbridge/toolgate/internal/version"
	"github.com/arcbridge/toolgate/pkg/container"
	"github.com/arcbridge/toolgate/pkg/format"
	"github.com/arcbridge/toolgate/pkg/nerdstats"
	"github.com/arcbridge/toolgate/pkg/profiler"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	runningContainerised := container.IsContainerised()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(loggerConfigFrom(cfg, runningContainerised))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("initialising", "version", version.Version, "pid", os.Getpid(), "containerised", runningContainerised)

	if cfg.Engineering.EnableProfiler {
		profiler.InitialiseProfiler(cfg.Engineering.ProfilerAddress)
	}

	container, err := app.NewContainer(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to construct service container", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := container.ReconcileSeeds(ctx); err != nil {
		styledLogger.Error("failed to reconcile seeded servers", "error", err)
	}

	routes := router.NewRouteRegistry(*styledLogger)
	server := app.NewServer(container, routes)
	mux := http.NewServeMux()
	server.Mount(mux)

	httpServer := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		styledLogger.Info("listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithLogger(logInstance, "http server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	styledLogger.Info("shutdown signal received", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		styledLogger.Error("http server shutdown error", "error", err)
	}

	if err := container.Shutdown.Shutdown(context.Background()); err != nil {
		styledLogger.Error("error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)
	styledLogger.Info("toolgate has shutdown")
}

// loggerConfigFrom maps the gateway's logging config onto the styled
// logger's setup; running inside a container forces plain, pretty-free
// output regardless of the configured format, since there's no terminal to
// colour for.
func loggerConfigFrom(cfg *config.Config, containerised bool) *logger.Config {
	return &logger.Config{
		Level:      cfg.Logging.Level,
		FileOutput: cfg.Logging.Output == "file",
		LogDir:     "./logs",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Theme:      "default",
		PrettyLogs: cfg.Logging.Format != "json" && !containerised,
	}
}

func reportProcessStats(log *logger.StyledLogger, startTime time.Time) {
	stats := nerdstats.Snapshot(startTime)

	log.Info("process memory stats",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"memory_pressure", stats.GetMemoryPressure(),
	)
	log.Info("runtime stats",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
		"goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
	)
	if stats.NumGC > 0 {
		log.Info("garbage collection stats",
			"num_gc_cycles", stats.NumGC,
			"avg_gc_pause", nerdstats.CalculateAverageGCPause(stats),
		)
	}
}
