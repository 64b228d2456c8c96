package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockharvest/internal/assert"
	"stockharvest/internal/components/chrono"
	"stockharvest/internal/components/telemetry"
	"stockharvest/internal/prices"
	"stockharvest/internal/ratings"
	"stockharvest/internal/scheduler"
	"stockharvest/internal/scrapers/stockanalysis"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("stockharvest.harvest")
var meter = otel.Meter("stockharvest.harvest")

const (
	report_refresh       = "refresh"
	report_parse_row     = "parse-row"
	report_parse_history = "parse-history"
	report_screenshot    = "screenshot"
	report_schedule      = "schedule"
)

// ErrNothingTracked is returned by Tick when no ticker is scheduled.
var ErrNothingTracked = errors.New("no tickers are tracked")

type Store interface {
	UpsertRatings(ctx context.Context, records []ratings.Record) (int, error)
	UpsertPriceBars(ctx context.Context, bars []prices.Bar) (int, error)
	AdvanceFreshness(ctx context.Context, ticker string, asOf time.Time) error
}

type HistoryDownloader interface {
	Download(ctx context.Context, ticker string) (path string, err error)
}

type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

type Options struct {
	Ratings stockanalysis.RatingsFetcher
	// History is nil when the history product is disabled.
	History HistoryDownloader
	// Screenshots is nil when diagnostic captures are disabled.
	Screenshots   Screenshotter
	ScreenshotDir string
}

// Harvester runs the refresh cycle of a ticker: fetch, parse, dedup and
// persist, then advance the ticker's freshness.
type Harvester struct {
	tel       telemetry.API
	time      chrono.API
	store     Store
	scheduler scheduler.Scheduler
	options   Options

	persistedRatings metric.Int64Counter
	persistedBars    metric.Int64Counter
	failures         metric.Int64Counter
}

func New(
	store Store,
	sched scheduler.Scheduler,
	time chrono.API,
	tel telemetry.API,
	options Options,
) (Harvester, error) {
	assert.NotNil(store, "store")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")
	if options.Ratings == nil && options.History == nil {
		return Harvester{}, fmt.Errorf("no data product is enabled")
	}

	persistedRatings, err := meter.Int64Counter(
		"stockharvest.ratings.persisted",
		metric.WithDescription("rating records written to the store"),
	)
	if err != nil {
		return Harvester{}, err
	}
	persistedBars, err := meter.Int64Counter(
		"stockharvest.prices.persisted",
		metric.WithDescription("price bars written to the store"),
	)
	if err != nil {
		return Harvester{}, err
	}
	failures, err := meter.Int64Counter(
		"stockharvest.ticker.failures",
		metric.WithDescription("refresh cycles that failed"),
	)
	if err != nil {
		return Harvester{}, err
	}

	return Harvester{
		tel:              telemetry.NewScopedAPI("harvest", tel),
		time:             time,
		store:            store,
		scheduler:        sched,
		options:          options,
		persistedRatings: persistedRatings,
		persistedBars:    persistedBars,
		failures:         failures,
	}, nil
}

// Tick refreshes the single least recently refreshed ticker.
func (h Harvester) Tick(ctx context.Context) (string, error) {
	ticker, ok, err := h.scheduler.Next(ctx)
	if err != nil {
		h.tel.ReportBroken(report_schedule, err)
		return "", err
	}
	if !ok {
		h.tel.ReportWarning(report_schedule, ErrNothingTracked)
		return "", ErrNothingTracked
	}
	return ticker, h.Refresh(ctx, ticker)
}

// RefreshAll refreshes each ticker in order. A failing ticker does not stop
// the others, the returned errors are keyed by ticker.
func (h Harvester) RefreshAll(ctx context.Context, tickers []string) map[string]error {
	failed := map[string]error{}
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			failed[ticker] = ctx.Err()
			continue
		}
		err := h.Refresh(ctx, ticker)
		if err != nil {
			failed[ticker] = err
		}
	}
	return failed
}

// Refresh runs every enabled product for ticker. Freshness only advances if
// all of them succeed, otherwise a diagnostic screenshot is taken and the
// ticker stays eligible for the next tick.
func (h Harvester) Refresh(ctx context.Context, ticker string) (err error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	ctx, span := tracer.Start(ctx, "Refresh", trace.WithAttributes(
		attribute.String("ticker", ticker),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while refreshing %s: %v", ticker, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "refresh failed")
			h.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("ticker", ticker)))
			h.tel.ReportBroken(report_refresh, err, ticker)
			h.captureScreenshot(ticker)
		}
	}()

	if h.options.Ratings != nil {
		err = h.refreshRatings(ctx, ticker)
		if err != nil {
			return err
		}
	}
	if h.options.History != nil {
		err = h.refreshHistory(ctx, ticker)
		if err != nil {
			return err
		}
	}

	return h.store.AdvanceFreshness(ctx, ticker, chrono.Today(h.time))
}

func (h Harvester) refreshRatings(ctx context.Context, ticker string) error {
	table, err := h.options.Ratings.FetchRatings(ctx, ticker)
	if err != nil {
		return err
	}

	records, issues := ratings.ParseTable(ticker, table)
	for _, issue := range issues {
		h.tel.ReportWarning(report_parse_row, issue, ticker)
	}
	unique := ratings.Dedup(records)
	h.tel.ReportDebug("parsed ratings", ticker, len(records), len(unique))

	written, err := h.store.UpsertRatings(ctx, unique)
	if err != nil {
		return err
	}
	h.persistedRatings.Add(ctx, int64(written), metric.WithAttributes(attribute.String("ticker", ticker)))
	h.tel.ReportCount("ratings.persisted", int64(written))
	return nil
}

func (h Harvester) refreshHistory(ctx context.Context, ticker string) error {
	path, err := h.options.History.Download(ctx, ticker)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bars, issues, err := prices.ParseHistoryCSV(ticker, f)
	if errors.Is(err, prices.ErrNoRows) {
		h.tel.ReportWarning(report_parse_history, err, ticker)
		return nil
	}
	if err != nil {
		return err
	}
	for _, issue := range issues {
		h.tel.ReportWarning(report_parse_history, issue, ticker)
	}

	written, err := h.store.UpsertPriceBars(ctx, bars)
	if err != nil {
		return err
	}
	h.persistedBars.Add(ctx, int64(written), metric.WithAttributes(attribute.String("ticker", ticker)))
	h.tel.ReportCount("prices.persisted", int64(written))
	return nil
}

// captureScreenshot writes <ticker>_error.png, failures are only reported.
func (h Harvester) captureScreenshot(ticker string) {
	if h.options.Screenshots == nil {
		return
	}

	// the cycle's context may be what failed, the capture gets its own
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	png, err := h.options.Screenshots.Screenshot(ctx)
	if err != nil {
		h.tel.ReportWarning(report_screenshot, err, ticker)
		return
	}
	dir := h.options.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_error.png", ticker))
	err = os.WriteFile(path, png, 0644)
	if err != nil {
		h.tel.ReportWarning(report_screenshot, err, ticker)
		return
	}
	h.tel.ReportDebug("wrote diagnostic screenshot", path)
}
