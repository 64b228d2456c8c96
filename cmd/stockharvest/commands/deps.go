package commands

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	devenv "stockharvest/dev/env"
	"stockharvest/internal/components/chrono"
	"stockharvest/internal/components/serviceutil"
	"stockharvest/internal/components/telemetry"
	"stockharvest/internal/config"
	"stockharvest/internal/harvest"
	"stockharvest/internal/scheduler"
	"stockharvest/internal/scrapers/stockanalysis"
	"stockharvest/internal/store"
)

type deps struct {
	config   config.Config
	database *sql.DB
	store    store.Store
	time     chrono.StandardImpl
	tel      telemetry.API
	otel     telemetry.Otel
}

// openDeps loads and validates the config before anything touches the
// network, then opens the database. Any failure is fatal.
func openDeps(ctx context.Context) deps {
	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	telemetry.InitSlog(telemetry.ParseLevel(cfg.LogLevel))

	err = cfg.Validate()
	if err != nil {
		serviceutil.Fatal("invalid config", err)
	}

	otel, err := telemetry.SetupOtelFromEnv(ctx, "stockharvest")
	if err != nil {
		serviceutil.Fatal("failed to setup otel", err)
	}

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		serviceutil.Fatal("failed to load exchange timezone", err)
	}

	tel := telemetry.SlogAPI{}
	database, err := cfg.Database.Open()
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	return deps{
		config:   cfg,
		database: database,
		store:    store.New(database, cfg.Database.Dialect(), tel),
		time:     clock,
		tel:      tel,
		otel:     otel,
	}
}

func (d deps) Close() {
	d.database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

// harvester wires a Harvester for the given products. The returned cleanup
// releases the browser and must run on every exit path.
func (d deps) harvester(products []string) (harvest.Harvester, func()) {
	cfg := d.config
	cfg.Harvest.Products = products
	err := cfg.Validate()
	if err != nil {
		serviceutil.Fatal("invalid products", err)
	}

	var session *stockanalysis.BrowserSession
	cleanup := func() {
		if session != nil {
			session.Close()
		}
	}

	needsBrowser := cfg.Scraper.FetchMode == config.FetchModeBrowser ||
		cfg.HasProduct(config.ProductHistory)

	downloadDir := ""
	if cfg.HasProduct(config.ProductHistory) {
		downloadDir, err = resolveDir(cfg.Download.Dir)
		if err != nil {
			serviceutil.Fatal("failed to resolve download dir", err)
		}
	}

	if needsBrowser {
		session, err = stockanalysis.NewBrowserSession(stockanalysis.BrowserOptions{
			Headful:     cfg.Browser.Headful,
			DownloadDir: downloadDir,
			UserAgent:   cfg.Scraper.UserAgent,
		})
		if err != nil {
			serviceutil.Fatal("failed to start browser", err)
		}
	}

	options := harvest.Options{}
	if !cfg.Diagnostics.DisableScreenshots && session != nil {
		options.Screenshots = session
		options.ScreenshotDir, err = resolveDir(cfg.Diagnostics.ScreenshotDir)
		if err != nil {
			cleanup()
			serviceutil.Fatal("failed to resolve screenshot dir", err)
		}
	}

	var browserFetcher stockanalysis.BrowserFetcher
	if session != nil {
		browserFetcher = stockanalysis.NewBrowserFetcher(session, cfg.FetchOptions(), d.tel)
	}

	if cfg.HasProduct(config.ProductRatings) {
		switch cfg.Scraper.FetchMode {
		case config.FetchModeStatic:
			static, err := stockanalysis.NewStaticFetcher(cfg.StaticOptions(), d.tel)
			if err != nil {
				cleanup()
				serviceutil.Fatal("failed to create http fetcher", err)
			}
			options.Ratings = static
		default:
			options.Ratings = browserFetcher
		}
	}

	if cfg.HasProduct(config.ProductHistory) {
		clicker := stockanalysis.NewDownloadClicker(
			session,
			stockanalysis.DefaultStrategies(cfg.Selectors()),
			cfg.AttemptTimeout(),
			d.tel,
		)
		options.History = stockanalysis.NewHistoryDownloader(
			browserFetcher,
			clicker,
			cfg.DownloadOptions(downloadDir),
			d.tel,
		)
	}

	h, err := harvest.New(d.store, scheduler.New(d.store), d.time, d.tel, options)
	if err != nil {
		cleanup()
		serviceutil.Fatal("failed to create harvester", err)
	}
	return h, cleanup
}

// resolveDir expands <dev_state>, makes the path absolute and creates it.
// chrome silently drops downloads into a relative directory.
func resolveDir(dir string) (string, error) {
	resolved, err := devenv.ResolvePath(dir)
	if err != nil {
		return "", err
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	return resolved, os.MkdirAll(resolved, 0777)
}
