// Package main is the entry point for the srt-streamer status agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"

	"github.com/jamesprial/srt-streamer-agent/internal/activity"
	"github.com/jamesprial/srt-streamer-agent/internal/config"
	"github.com/jamesprial/srt-streamer-agent/internal/control"
	"github.com/jamesprial/srt-streamer-agent/internal/display"
	"github.com/jamesprial/srt-streamer-agent/internal/httpapi"
	"github.com/jamesprial/srt-streamer-agent/internal/hub"
	"github.com/jamesprial/srt-streamer-agent/internal/mcpapi"
	"github.com/jamesprial/srt-streamer-agent/internal/safety"
	"github.com/jamesprial/srt-streamer-agent/internal/status"
	"github.com/jamesprial/srt-streamer-agent/internal/system"
	"github.com/jamesprial/srt-streamer-agent/internal/usbreset"
)

const (
	defaultConfigPath = "/etc/srt-agent/config.yaml"
	version           = "1.0.0"
	shutdownBudget    = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	pflag.StringVar(&configPath, "config", envOr("SRT_AGENT_CONFIG", defaultConfigPath), "path to the YAML configuration file")
	pflag.Parse()

	cfg, loadErr := loadConfig(configPath)
	if cfg == nil {
		return loadErr
	}
	config.ApplyEnvOverrides(cfg)
	logger := newLogger(os.Stderr, cfg.Log.Level)
	if loadErr != nil {
		logger.Info("using default configuration", "path", configPath, "reason", loadErr)
	}
	if err := config.ApplyDisplayEnv(cfg, cfg.Display.EnvFile); err != nil {
		logger.Warn("display settings not applied", "path", cfg.Display.EnvFile, "error", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Audit log.
	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		al, f, err := safety.OpenAuditLog(cfg.Audit.LogPath)
		if err != nil {
			logger.Warn("audit logging disabled", "path", cfg.Audit.LogPath, "error", err)
		} else {
			auditLogger = al
			defer func() { _ = f.Close() }()
		}
	}

	// Snapshot pipeline.
	prober := system.NewHostProber(system.ExecRunner{}, system.Options{
		Timeout:       cfg.Probe.Timeout.Std(),
		SampleWindow:  cfg.Probe.SampleWindow.Std(),
		APInterface:   cfg.Probe.APInterface,
		HostapdConfig: cfg.Probe.HostapdConfig,
		Exclude:       cfg.Probe.ExcludeInterfaces,
	})
	builder := status.NewBuilder(prober, status.Options{
		Exclude:       cfg.Probe.ExcludeInterfaces,
		StreamService: cfg.Probe.StreamService,
		Services:      []string{cfg.Probe.WatcherService},
		Thresholds: activity.Thresholds{
			Debounce:       cfg.Classifier.Debounce.Std(),
			MinBitrateKbps: cfg.Classifier.MinBitrateKbps,
		},
		RemoteURLFormat: cfg.Status.RemoteURLFormat,
	}, logger.With("component", "status"))

	snapshots := hub.New(builder, hub.Options{
		PollInterval: cfg.Hub.PollInterval.Std(),
		PushInterval: cfg.Hub.PushInterval.Std(),
		WriteTimeout: cfg.Hub.WriteTimeout.Std(),
	}, logger.With("component", "hub"))
	go snapshots.Run(ctx)

	// Local display.
	if cfg.Display.Enabled {
		closeDisplay, err := startDisplay(ctx, cfg.Display, snapshots, logger.With("component", "display"))
		if err != nil {
			logger.Error("display disabled", "error", err)
		} else {
			defer closeDisplay()
		}
	}

	// Control.
	serviceFilter := safety.NewFilter(cfg.Safety.Services.Allowlist, cfg.Safety.Services.Denylist)
	if stale := serviceFilter.Unmatched(control.Services); len(stale) > 0 {
		logger.Warn("service filter patterns match no restartable service", "patterns", stale, "services", control.Services)
	}
	gateway := control.NewGateway(control.ExecExecutor{}, usbreset.New(), serviceFilter,
		auditLogger,
		control.Options{
			UseSudo:          cfg.Control.UseSudo,
			CommandTimeout:   cfg.Control.CommandTimeout.Std(),
			CamlinkScript:    cfg.Control.CamlinkResetScript,
			CamlinkVendorID:  cfg.Control.CamlinkVendorID,
			CamlinkProductID: cfg.Control.CamlinkProductID,
			UpdateCommand:    cfg.Control.UpdateCommand,
		}, logger.With("component", "control"))

	// HTTP surface.
	opts := httpapi.Options{
		DashboardDir: cfg.Server.DashboardDir,
		HLSDir:       cfg.Server.HLSDir,
		StreamUnit:   cfg.Probe.StreamService,
		WatcherUnit:  cfg.Probe.WatcherService,
	}
	if cfg.Server.MCPEnabled {
		confirm := safety.NewConfirmationTracker(mcpapi.GuardedTools)
		mcpServer := mcpapi.NewServer(version, mcpapi.Tools(snapshots, prober, gateway, confirm))
		opts.MCP = server.NewStreamableHTTPServer(mcpServer)
	}
	api, err := httpapi.New(ctx, snapshots, prober, gateway, opts, logger.With("component", "http"))
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("srt-streamer agent listening", "addr", addr, "mcp", cfg.Server.MCPEnabled)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		cancel()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer shutdownCancel()

	closed := snapshots.Shutdown(shutdownCtx)
	logger.Info("websocket subscribers closed", "count", closed)
	cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown error", "error", err)
	}
	logger.Info("agent stopped")
	return nil
}

// loadConfig reads path. A missing or unreadable file yields DefaultConfig
// together with the reason; a file that does not parse yields a nil config.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return config.DefaultConfig(), err
	default:
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// startDisplay runs the display cycler until ctx is done. The returned func
// closes the output device.
func startDisplay(ctx context.Context, cfg config.DisplayConfig, src display.Source, logger *slog.Logger) (func(), error) {
	variant, err := display.VariantFor(cfg.Size)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	closeOut := func() {}
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open display output: %w", err)
		}
		out = f
		closeOut = func() { _ = f.Close() }
	}

	cycler, err := display.NewCycler(src, variant, display.NewTerminalRenderer(out, variant, cfg.RGB),
		cfg.SwitchInterval.Std(), cfg.RefreshInterval.Std(), logger)
	if err != nil {
		closeOut()
		return nil, err
	}
	logger.Info("display started", "size", cfg.Size, "modes", len(variant.Modes))
	go cycler.Run(ctx)
	return closeOut, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
