package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connstated/internal/api"
	"github.com/dmdmdm-nz/connstated/internal/connstate"
	"github.com/dmdmdm-nz/connstated/internal/metrics"
	"github.com/dmdmdm-nz/connstated/internal/netmon"
	"github.com/dmdmdm-nz/connstated/internal/runtime"
	"github.com/dmdmdm-nz/connstated/internal/signals"
	"github.com/dmdmdm-nz/connstated/pkg/cli"
)

func main() {
	// Parse command line flags
	cfg := cli.ParseFlags()

	// Configure logging
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FullTimestamp:   true,
	})

	log.Infof("Config: %s", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A nil platform leaves the monitor running without events.
	var platform connstate.Platform
	if p, err := netmon.New(netmon.Options{MeteredInterfaces: cfg.MeteredInterfaces}); err != nil {
		log.WithError(err).Warn("Network platform unavailable")
	} else {
		platform = p
	}

	hub := connstate.NewHub(cfg.EventBacklog)
	bus := signals.NewBusEmitter(nil, cfg.EventBacklog)
	if err := signals.LogTransitions(bus.Bus()); err != nil {
		log.WithError(err).Warn("Failed to subscribe transition logger")
	}

	var monitor *connstate.Monitor
	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer, metrics.Gauges{
		Networks:    func() int { return monitor.NetworkCount() },
		Subscribers: hub.Subscribers,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to register metrics")
	}

	// Emitters are wired BEFORE the monitor starts so no transition is missed.
	monitor = connstate.NewMonitor(platform, connstate.MultiEmitter{hub, bus, collector})

	apiSvc := api.NewService(cfg.Host, cfg.Port)
	apiSvc.Attach(monitor, hub)
	apiSvc.AttachMetrics(collector.Handler())

	// Start in dependency order: events → monitor → api
	super := runtime.NewSupervisor()
	super.Add("events", func(ctx context.Context) error { <-ctx.Done(); return nil }, func() error {
		_ = hub.Close()
		return bus.Close()
	})
	super.Add("monitor", monitor.Run, monitor.Close)
	super.Add("api", apiSvc.Start, apiSvc.Close)

	if err := super.Start(ctx); err != nil {
		log.WithError(err).Error("Supervisor start failed")
		os.Exit(1)
	}
	if err := super.Wait(ctx); err != nil {
		log.WithError(err).Error("Supervisor wait failed")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
