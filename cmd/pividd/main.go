// Command pividd is the reference daemon: it loads a script, drives a
// frame cache and presenter pool from it, and serves /health, /readiness,
// and /metrics until signaled to stop.
//
// Flag parsing, JSON slog setup, signal handling, and the
// run-in-goroutine / select-on-signal-or-error / timed-shutdown sequence
// are grounded verbatim on
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/cmd/oriond/main.go.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/pivid/internal/config"
	"github.com/e7canasta/pivid/internal/display"
	"github.com/e7canasta/pivid/internal/mediadecoder"
	"github.com/e7canasta/pivid/internal/pvtime"
	"github.com/e7canasta/pivid/internal/script"
	"github.com/e7canasta/pivid/internal/scriptrunner"
	"github.com/e7canasta/pivid/internal/unixsystem"
)

const defaultConfigPath = "config/pivid.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting pivid daemon", "config", *configPath, "debug", *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "instance_id", cfg.InstanceID, "script", cfg.Script.Path)

	sys := unixsystem.NewReal()
	driver := display.NewSoftwareDriver(display.Status{
		ConnectorID: 1,
		Name:        "HDMI-A-1",
		Detected:    true,
		ActiveMode:  display.Mode{Width: 1920, Height: 1080, RefreshHz: 60},
	})

	runnerCfg := scriptrunner.DefaultConfig()
	runnerCfg.Horizon = pvtime.Seconds(cfg.Timing.PrefetchHorizonS)
	runnerCfg.Grace = durationFromSeconds(cfg.Timing.LoaderGraceS)
	runnerCfg.TickInterval = cfg.TickInterval()
	runnerCfg.LoaderConfig.SeekThreshold = pvtime.Seconds(cfg.Timing.SeekThresholdS)

	runner := scriptrunner.New(driver, mediadecoder.OpenGst, sys, runnerCfg)

	s, err := script.FromYAML(cfg.Script.Path, sys.SystemTime())
	if err != nil {
		slog.Error("failed to load script", "error", err, "path", cfg.Script.Path)
		os.Exit(1)
	}
	runner.Update(s)

	if err := runner.StartHealthServer(cfg.Health.Port); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- runner.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("runner stopped with error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("pivid daemon stopped successfully")
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
