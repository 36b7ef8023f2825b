package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"maimai-scraper/internal/components/chrono"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/config"
	"maimai-scraper/internal/db"
	"maimai-scraper/internal/i18n"
	"maimai-scraper/internal/metadata"
	"maimai-scraper/internal/scrapers/maimai"
	"maimai-scraper/internal/store"
	"maimai-scraper/pkg/apppath"
	"maimai-scraper/pkg/restyutil"
	"maimai-scraper/pkg/serviceutil"

	"github.com/lmittmann/tint"
)

const serviceName = "maimai-scraper"

const (
	report_main_setup_telemetry    = "main.setup-telemetry"
	report_main_shutdown_telemetry = "main.shutdown-telemetry"
	report_main_resty_dump         = "main.resty-dump"
	report_main_close_store        = "main.close-store"
)

func initSlog(level slog.Level) {
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

// initTelemetry installs the otel exporters when a telemetry.json5 is
// found, the returned function flushes them.
func initTelemetry(ctx context.Context, tel telemetry.API) func() {
	t, err := telemetry.SetupFromEnv(ctx, serviceName)
	if errors.Is(err, os.ErrNotExist) {
		return func() {}
	}
	if err != nil {
		tel.ReportWarning(report_main_setup_telemetry, err)
		return func() {}
	}
	telemetry.InstrumentPerfStats(ctx, tel, 15*time.Second)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.Shutdown(ctx); err != nil {
			tel.ReportWarning(report_main_shutdown_telemetry, err)
		}
	}
}

// loadConfig reads the configuration file, writing a default one and
// exiting on first run.
func loadConfig() (config.Config, i18n.Messages) {
	path, err := apppath.ResolvePath(configPath)
	if err != nil {
		serviceutil.Fatal("resolve config path", err)
	}

	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		msgs := i18n.New("en")
		created, werr := config.WriteDefault(path)
		if werr != nil {
			serviceutil.Fatal("write default config", werr)
		}
		if created {
			fmt.Fprintln(os.Stderr, msgs.T(i18n.ConfigCreated))
			fmt.Fprintln(os.Stderr, path)
			serviceutil.SetPausePrompt(msgs.T(i18n.PressEnter))
			serviceutil.Pause()
			os.Exit(0)
		}
		serviceutil.Fatal("read config", err)
	}
	if err != nil {
		msgs := i18n.New("en")
		serviceutil.SetPausePrompt(msgs.T(i18n.PressEnter))
		serviceutil.Fatal(msgs.T(i18n.ConfigInvalid), err)
	}

	msgs := i18n.New(cfg.Language)
	serviceutil.SetPausePrompt(msgs.T(i18n.PressEnter))
	return cfg, msgs
}

func openStore(ctx context.Context, tel telemetry.API) *store.Store {
	path, err := apppath.ResolvePath(dbPath)
	if err != nil {
		serviceutil.Fatal("resolve database path", err)
	}
	s, err := db.Open(ctx, path, tel)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	return s
}

// restyDump returns where raw http exchanges are written in verbose mode.
func restyDump(tel telemetry.API) restyutil.InstrumentOutput {
	dir, err := apppath.ResolvePath("<app>/.dev/resty")
	if err != nil {
		tel.ReportWarning(report_main_resty_dump, err)
		return nil
	}
	out, err := restyutil.NewFilesystemOutput(dir)
	if err != nil {
		tel.ReportWarning(report_main_resty_dump, err)
		return nil
	}
	return out
}

// env is everything a scraping command needs.
type env struct {
	cfg      config.Config
	msgs     i18n.Messages
	tel      telemetry.API
	time     chrono.TimeAPI
	store    *store.Store
	client   *maimai.Client
	scraper  *maimai.Scraper
	shutdown func()
}

func (e env) Close() {
	if err := e.store.Close(); err != nil {
		e.tel.ReportWarning(report_main_close_store, err)
	}
	e.shutdown()
}

func setup(ctx context.Context) env {
	cfg, msgs := loadConfig()
	initSlog(cfg.LogLevel)
	tel := telemetry.NewSlogAPI(slog.Default())
	shutdown := initTelemetry(ctx, tel)

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		serviceutil.Fatal("load time zone", err)
	}

	s := openStore(ctx, tel)
	meta, err := metadata.NewManager(ctx, s, clock, telemetry.NewScopedAPI("metadata", tel))
	if err != nil {
		serviceutil.Fatal("initialize metadata", err)
	}
	if meta.Fresh() {
		slog.Info("created a new database", "scraper_version", *meta.Version().ScraperVersion)
	}

	var dump restyutil.InstrumentOutput
	if verbose {
		dump = restyDump(tel)
	}

	client, err := maimai.NewClient(cfg.Endpoints, maimai.ClientOptions{
		UserAgent: cfg.Browser.UserAgent(),
		Timeout:   cfg.WaitTimeout,
		Dump:      dump,
	}, tel)
	if err != nil {
		serviceutil.Fatal("create http client", err)
	}

	scraper := maimai.NewScraper(client, s, meta, clock, tel, maimai.Options{
		WaitDelay:         cfg.WaitDelay,
		MaxDetailAttempts: cfg.DetailAttempts,
	})

	return env{
		cfg:      cfg,
		msgs:     msgs,
		tel:      tel,
		time:     clock,
		store:    s,
		client:   client,
		scraper:  scraper,
		shutdown: shutdown,
	}
}

// explain turns the errors an operator can act on into their message.
func explain(msgs i18n.Messages, err error) string {
	switch {
	case errors.Is(err, maimai.ErrMaintenance):
		return msgs.T(i18n.ServerUnderMaintenance)
	case errors.Is(err, maimai.ErrSessionExpired):
		return msgs.T(i18n.SessionExpired)
	case errors.Is(err, maimai.ErrLoginFailed):
		return msgs.T(i18n.LoginFailed)
	}
	return err.Error()
}
