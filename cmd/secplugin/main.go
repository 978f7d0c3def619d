// Package main runs a relay plugin with the built-in command handlers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/secplugin/config"
	"github.com/c360/secplugin/dispatch"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/health"
	"github.com/c360/secplugin/metric"
	"github.com/c360/secplugin/pkg/tlsutil"
	"github.com/c360/secplugin/sender"
	"github.com/c360/secplugin/session"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "secplugin"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, fs, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.PrintConfig {
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, _ = os.Stdout.Write(out)
		return nil
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting secplugin",
		"version", Version,
		"build_time", BuildTime,
		"relay", cfg.Relay.URL,
		"pid", cfg.Relay.PID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runPlugin(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// loadConfig layers the configuration files, applies the environment and
// then the logging flags.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cliCfg.ConfigPaths {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runPlugin(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	metricsRegistry := metric.NewMetricsRegistry()
	clientMetrics, err := metric.NewClientMetrics(metricsRegistry)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	codec, err := frame.NewCodec(cfg.Relay.Codec)
	if err != nil {
		return fmt.Errorf("create codec: %w", err)
	}

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(clientMetrics),
		session.WithCodec(codec),
		session.WithStateHook(func(from, to session.State) {
			if to == session.Ready {
				slog.Info("Plugin ready", "from", from.String())
			}
		}),
	}
	if strings.HasPrefix(cfg.Relay.URL, "wss://") || !cfg.Relay.TLS.IsZero() {
		tlsConfig, err := tlsutil.LoadClientConfig(cfg.Relay.TLS)
		if err != nil {
			return fmt.Errorf("relay tls: %w", err)
		}
		sessionOpts = append(sessionOpts, session.WithDialer(&websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Session.ConnectTimeout,
			TLSClientConfig:  tlsConfig,
		}))
	}

	registry := dispatch.NewRegistry()
	dispatcher := dispatch.New(registry, cfg.DispatchConfig(),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(clientMetrics),
		dispatch.WithPoolMetrics(metricsRegistry, "dispatch"))

	sess, err := session.New(cfg.SessionConfig(), dispatcher, sessionOpts...)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	snd := sender.New(sess,
		sender.WithLogger(logger),
		sender.WithTimeout(cfg.Session.RequestTimeout))
	if err := registerHandlers(registry, snd); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	if cfg.Metrics.Enabled {
		monitor := health.NewMonitor()
		monitor.Register("session", sess.Health)
		monitor.Register("dispatcher", func() health.Status { return dispatcherHealth(dispatcher) })
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, func() health.Status {
			return monitor.AggregateHealth(appName)
		})
		go func() {
			slog.Info("Metrics server listening", "address", server.Address())
			if err := server.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := server.Stop(); err != nil {
				slog.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", shutdownTimeout)
	go func() { _ = sess.Close() }()

	select {
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
		slog.Info("Shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %v", shutdownTimeout)
	}
}

func dispatcherHealth(d *dispatch.Dispatcher) health.Status {
	stats := d.Stats()
	status := health.NewHealthy("dispatcher",
		fmt.Sprintf("%d patterns, %d jobs processed", stats.Patterns, stats.Pool.Processed))
	if stats.Pool.Failed > 0 && stats.Pool.Failed >= stats.Pool.Processed {
		status = health.NewDegraded("dispatcher",
			fmt.Sprintf("%d of %d pooled handlers failed", stats.Pool.Failed, stats.Pool.Processed))
	}
	return status
}
