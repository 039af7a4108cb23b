package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bnappcal/internal/app"
	"bnappcal/internal/config"
	"bnappcal/internal/ics"
	"bnappcal/internal/jobs"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/provider"
	"bnappcal/internal/store"
	"bnappcal/internal/termview"
	"bnappcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	print      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	switch {
	case err != nil && conf == nil:
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	case err != nil:
		appLog.Warn("default config not saved", "config_path", flags.configPath, "err", err.Error())
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("bnappcal starting", "version", "0.1.0")

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"city", conf.City.Name,
		"ics_count", len(conf.ICS),
		"basic_auth", conf.BasicAuth != nil,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("bnappcal failed", err)
		os.Exit(1)
	}
	appLog.Info("bnappcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	dbPath := conf.DBPath
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return err
		}
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	fetcher := provider.NewFetcher(conf.CacheDir, conf.Timeout())
	client := provider.NewClient(fetcher, conf.Endpoints())

	opts := app.Options{Location: loc, DefaultCity: conf.DefaultCity()}
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, src := range conf.ICS {
		sources = append(sources, ics.Source{Name: src.Name, URL: src.URL})
	}
	if subs := ics.NewSubscriptions(fetcher, sources); subs != nil {
		for _, src := range subs.Sources() {
			appLog.Info("subscribed calendar", "name", src.Name, "url", provider.RedactURL(src.URL))
		}
		opts.Overlays = subs
	}

	a := app.New(st, client, opts)
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	defer a.Close()

	if flags.once || flags.print {
		if flags.print {
			fmt.Print(termview.Render(a.Month()))
		}
		return nil
	}

	runner, err := jobs.New(ctx, conf.RefreshCron, a, nil, loc)
	if err != nil {
		return err
	}
	runner.Start()
	defer runner.Stop()

	srv := web.NewServer(conf, a)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/bnappcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle and exit")
	flag.BoolVar(&cfg.print, "print", false, "Refresh once and print the month grid to stdout")

	flag.Parse()

	return cfg
}
