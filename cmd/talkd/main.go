// File: cmd/talkd/main.go
// Package main
// WebSocket text echo server. Every Text message is written back to the
// connection it came from, looked up through the shared connection registry.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/internal/config"
	"github.com/momentics/hioload-talk/internal/logging"
	"github.com/momentics/hioload-talk/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "talkd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr            = flag.String("addr", server.DefaultListenAddr, "listen address")
		configFile      = flag.String("config", "", "config file (yaml, toml or json)")
		logLevel        = flag.String("log-level", "info", "log level")
		logFormat       = flag.String("log-format", "text", "log format: text or json")
		metricsInterval = flag.Duration("metrics-interval", 0, "log metrics every interval (0 = off)")
	)
	flag.Parse()

	loader := config.NewLoader()
	if *configFile != "" {
		if err := loader.ReadFile(*configFile); err != nil {
			return err
		}
	}
	// explicitly set flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			loader.Set(config.KeyListenAddr, *addr)
		case "log-level":
			loader.Set(config.KeyLogLevel, *logLevel)
		case "log-format":
			loader.Set(config.KeyLogFormat, *logFormat)
		case "metrics-interval":
			loader.Set(config.KeyMetricsInterval, *metricsInterval)
		}
	})
	if flag.NArg() > 0 {
		loader.Set(config.KeyListenAddr, flag.Arg(0))
	}

	settings, err := loader.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return err
	}

	metrics := control.NewMetrics(nil)
	probes := control.NewDebugProbes()
	control.RegisterRuntimeProbes(probes)

	srv, err := server.NewServer(&settings.Server,
		server.WithLogger(log),
		server.WithMetrics(metrics),
		server.WithDebugProbes(probes),
	)
	if err != nil {
		return err
	}

	if *configFile != "" {
		var latest atomic.Pointer[config.Settings]
		control.RegisterReloadHook(func() {
			s := latest.Load()
			if s == nil {
				return
			}
			if err := logging.SetLevel(log, s.LogLevel); err != nil {
				log.WithError(err).Warn("reload: log level")
			}
		})
		if err := loader.Watch(log, latest.Store); err != nil {
			log.WithError(err).Warn("config watch disabled")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reportStop := make(chan struct{})
	defer close(reportStop)
	go metrics.Report(log, settings.MetricsInterval, reportStop)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	select {
	case err := <-serveErr:
		// bind failure or listener death before any signal
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).WithFields(logrus.Fields(probes.DumpState())).Warn("shutdown incomplete")
	}
	if err := <-serveErr; err != nil && !errors.Is(err, server.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server shutdown complete")
	return nil
}
