package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"myplanner/internal/alert"
	"myplanner/internal/config"
	appLog "myplanner/internal/log"
	"myplanner/internal/position"
	"myplanner/internal/store"
	"myplanner/internal/suggest"
	"myplanner/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
}

func main() {
	appLog.Info("myplanner starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI overrides.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(conf.LogLevel)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"storage_path", conf.StoragePath,
		"alerts_enabled", conf.Alerts.Enabled,
		"alert_cron", conf.Alerts.Cron,
		"alert_window_minutes", conf.Alerts.WindowMinutes,
		"movement_threshold_km", conf.Alerts.MovementThresholdKm,
		"suggest_configured", conf.Suggest.URL != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st, err := store.Open(conf.StoragePath)
	if err != nil {
		appLog.Error("failed to open event store", err, "path", conf.StoragePath)
		os.Exit(1)
	}

	var suggester suggest.Suggester
	if conf.Suggest.URL != "" {
		suggester = suggest.NewHTTPSuggester(conf.Suggest.URL, time.Duration(conf.Suggest.TimeoutSeconds)*time.Second)
	}

	// The evaluator cycle runs on a cron schedule; stopping the cron on
	// shutdown stops future ticks, and a disabled feature never registers
	// an entry at all.
	c := cron.New()
	if conf.Alerts.Enabled {
		var positions alert.PositionSource
		if conf.Alerts.PositionURL != "" {
			positions = position.NewHTTPSource(conf.Alerts.PositionURL, 10*time.Second)
		}

		ev := alert.NewEvaluator(
			alert.Config{
				Window:              time.Duration(conf.Alerts.WindowMinutes) * time.Minute,
				MovementThresholdKm: conf.Alerts.MovementThresholdKm,
			},
			st.Snapshot,
			positions,
			alertSink(st),
		)

		if _, err := c.AddFunc(conf.Alerts.Cron, func() { ev.RunCycle(ctx) }); err != nil {
			appLog.Error("invalid alert cron spec", err, "cron", conf.Alerts.Cron)
			os.Exit(1)
		}
		c.Start()
		appLog.Info("alert evaluator scheduled", "cron", conf.Alerts.Cron)
	}

	srv := web.NewServer(conf, st, suggester)
	if err := srv.Serve(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
		cancel()
	}

	// Stop cron synchronously so no queued tick fires after shutdown.
	<-c.Stop().Done()
	appLog.Info("myplanner exiting")
}

// alertSink is the host-side alert callback: it logs the alert and marks
// the instance notified so the evaluator never re-fires it. Delivery
// transport (push, email, SMS) hangs off this point in deployments that
// have one.
func alertSink(st *store.Store) alert.Sink {
	return func(a alert.Alert) {
		appLog.Info("alert fired",
			"event_id", a.Event.ID,
			"title", a.Event.Title,
			"start", a.Event.Start.Format(time.RFC3339),
			"location_gated", a.LocationGated,
			"contact_action", a.ContactAction,
		)
		if err := st.MarkAutoNotified(a.Event.ID); err != nil {
			appLog.Error("failed to mark event notified", err, "event_id", a.Event.ID)
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/myplanner/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	return cfg
}
