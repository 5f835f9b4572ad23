// Command dialer is the outbound dialer process: it loads numbers
// from configuration, originates calls over ARI bounded at MAX_CC,
// correlates call legs, persists per-call summaries to MySQL, feeds
// live call-lifecycle events to MQTT, and serves the HTTP control
// surface that starts and restarts dialing runs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
	"github.com/asterisk-tools/outbound-dialer/internal/callstate"
	"github.com/asterisk-tools/outbound-dialer/internal/config"
	"github.com/asterisk-tools/outbound-dialer/internal/control"
	"github.com/asterisk-tools/outbound-dialer/internal/correlator"
	"github.com/asterisk-tools/outbound-dialer/internal/dialer"
	"github.com/asterisk-tools/outbound-dialer/internal/publisher"
	"github.com/asterisk-tools/outbound-dialer/internal/recording"
	"github.com/asterisk-tools/outbound-dialer/internal/summary"
)

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		logger.Error("creating recordings directory", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pub, err := newPublisher(cfg, logger)
	if err != nil {
		logger.Error("connecting live event feed", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	adapter := ari.NewClient(cfg.ARIURL, cfg.ARIUsername, cfg.ARIPassword)
	store := callstate.New()

	// rec's retry timers fire on their own goroutines but must resume
	// verification on the orchestrator's single loop, so post closes
	// over orch before it exists; orch is assigned below, before Run
	// is ever started, so every real invocation sees it populated.
	var orch *dialer.Orchestrator
	rec := recording.New(adapter, cfg.RecordingsDir, cfg.RecordingFormat, logger, func(fn func()) { orch.Submit(fn) })
	persist := summary.NewStore(cfg.MySQLDSN(), cfg.MySQLTable)
	feed := publisher.NewFeed(pub, cfg.MQTTTopicPrefix, logger)

	corr := correlator.New(store, adapter, cfg, rec, persist, feed, logger)
	orch = dialer.New(cfg, adapter, corr, logger)
	defer persist.Close()

	srv := control.New(cfg.HTTPAddr, orch, persist, logger, ctx)

	logger.Info("starting control surface", "addr", cfg.HTTPAddr)
	if err := srv.Run(ctx); err != nil {
		logger.Error("control surface exited", "err", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// newLogger configures the process's single slog.Logger: JSON in
// production, text otherwise, per LOG_FORMAT (defaults to "json").
func newLogger() *slog.Logger {
	format := os.Getenv("LOG_FORMAT")
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// newPublisher backs the live event feed with MQTT when MQTT_BROKER
// is configured, else a no-op sink, so the feed is always optional.
func newPublisher(cfg config.Config, logger *slog.Logger) (publisher.Publisher, error) {
	if cfg.MQTTBroker == "" {
		logger.Info("MQTT_BROKER unset, live event feed disabled")
		return publisher.NewNoopPublisher(), nil
	}
	pub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		QoS:      1,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to MQTT broker", "broker", cfg.MQTTBroker)
	return pub, nil
}
