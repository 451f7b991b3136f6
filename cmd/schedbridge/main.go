package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"schedbridge/internal/bridge"
	"schedbridge/internal/capture"
	"schedbridge/internal/config"
	appLog "schedbridge/internal/log"
	"schedbridge/internal/schedule"
	"schedbridge/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	source     string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("schedbridge starting", "version", "0.1.0-dev")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI overrides.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.source != "" {
		conf.Source = flags.source
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"source", conf.Source,
		"resource", conf.Resource,
		"refresh", conf.RefreshCron,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	if conf.Source == "" {
		appLog.Error("no schedule source configured", nil, "hint", "set source in config or pass -source")
		os.Exit(1)
	}

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

	loc := locationOrLocal(conf.Timezone)
	normalizer := &schedule.Normalizer{
		DefaultBuildingID:   conf.DefaultBuilding.ID,
		DefaultBuildingName: conf.DefaultBuilding.Name,
		DefaultRooms:        conf.DefaultBuilding.Rooms,
	}
	store := schedule.NewStore(conf.Source, conf.Resource, normalizer, schedule.NewRecurrenceConverter(loc))

	// The bridge serves whatever the store currently holds; an unmodified
	// consumer pointed at this process (or a client the transport is
	// installed on) sees the legacy document.
	br := bridge.New(conf.Resource, store.LegacyPayload)

	// Initial load. A failure here is not fatal: the server starts anyway
	// and reports the inline error state until a refresh succeeds.
	if err := store.Reload(ctx); err != nil {
		appLog.Error("initial schedule load failed", err)
	} else {
		br.Nudge(ctx, store)
	}

	if flags.once {
		if conf.Capture.Enabled {
			// The headless capture navigates to this process's own board
			// page, so a single-shot run still needs the server up.
			go func() {
				if err := web.StartServer(ctx, conf, store, br, flags.debug); err != nil {
					appLog.Error("HTTP server stopped", err)
				}
			}()
		}
		runOnce(ctx, conf, store, flags.debug)
		return
	}

	// Periodic refresh.
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() { refresh(ctx, conf, store, br, flags.debug) }); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	go func() {
		if err := web.StartServer(ctx, conf, store, br, flags.debug); err != nil {
			appLog.Error("HTTP server stopped", err)
			cancel()
		}
	}()

	<-ctx.Done()

	// Give in-flight handlers a moment before exit.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("schedbridge exiting")
}

// refresh reloads the schedule and, when enabled, recaptures the board PNG.
func refresh(ctx context.Context, conf *config.Config, store *schedule.Store, br *bridge.Bridge, debug bool) {
	if err := store.Reload(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
		return
	}
	br.Nudge(ctx, store)
	capturePreview(ctx, conf, debug)
}

// runOnce performs a single fetch (already done by the caller) plus an
// optional capture, then exits. Useful for cron-external deployments.
func runOnce(ctx context.Context, conf *config.Config, store *schedule.Store, debug bool) {
	snap := store.Snapshot()
	if snap == nil {
		appLog.Error("single-shot run produced no snapshot", store.LastErr())
		os.Exit(1)
	}
	appLog.Info("single-shot run complete",
		"bookings", len(snap.Model.Bookings),
		"rows", len(snap.Rows),
		"payload_bytes", len(snap.Payload),
	)
	if conf.Capture.Enabled && !waitForServer(ctx, conf.Listen) {
		appLog.Error("board page never became reachable; skipping capture", nil, "listen", conf.Listen)
		return
	}
	capturePreview(ctx, conf, debug)
}

// waitForServer polls the health endpoint until the just-started server
// accepts connections.
func waitForServer(ctx context.Context, listen string) bool {
	url := "http://" + listen + "/health"
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for i := 0; i < 20; i++ {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}

func capturePreview(ctx context.Context, conf *config.Config, debug bool) {
	if !conf.Capture.Enabled {
		return
	}
	opts := capture.CaptureOptions{
		URL:        "http://" + conf.Listen + "/",
		OutputPath: conf.PreviewPath(debug),
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
	}
	if err := capture.CaptureBoardPNG(ctx, opts); err != nil {
		appLog.Error("board capture failed", err, "url", opts.URL)
		return
	}
	appLog.Info("board captured", "output", opts.OutputPath)
}

func locationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schedbridge/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.source, "source", "", "Schedule source base URL (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch(+capture) cycle and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Verbose logging and local cache paths")

	flag.Parse()

	return cfg
}
