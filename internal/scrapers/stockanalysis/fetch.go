package stockanalysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockharvest/internal/assert"
	"stockharvest/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_fetch_ratings = "fetch-ratings"
	report_open_history  = "open-history"
)

type FetchOptions struct {
	URLs            URLs
	RatingsSelector string
	HistorySelector string
	// PageTimeout bounds loading a page and waiting for its content region.
	PageTimeout time.Duration
}

// BrowserFetcher loads pages in a browser tab.
type BrowserFetcher struct {
	page    Page
	options FetchOptions
	tel     telemetry.API
}

func NewBrowserFetcher(page Page, options FetchOptions, tel telemetry.API) BrowserFetcher {
	assert.NotNil(page, "page")
	assert.NotNil(tel, "telemetry")
	return BrowserFetcher{
		page:    page,
		options: options,
		tel:     telemetry.NewScopedAPI("stockanalysis", tel),
	}
}

func (f BrowserFetcher) load(ctx context.Context, url, selector string) error {
	ctx, cancel := context.WithTimeout(ctx, f.options.PageTimeout)
	defer cancel()

	f.tel.ReportDebug("navigate", url, selector)
	err := f.page.Navigate(ctx, url, selector)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFetchTimeout, url, err)
	}
	return nil
}

// FetchRatings loads the ratings page of ticker and returns the ratings
// table body once it is present.
func (f BrowserFetcher) FetchRatings(ctx context.Context, ticker string) (*goquery.Selection, error) {
	url := f.options.URLs.Ratings(ticker)
	err := f.load(ctx, url, f.options.RatingsSelector)
	if err != nil {
		f.tel.ReportWarning(report_fetch_ratings, err, ticker)
		return nil, err
	}

	htmlCtx, cancel := context.WithTimeout(ctx, f.options.PageTimeout)
	defer cancel()
	html, err := f.page.HTML(htmlCtx)
	if err != nil {
		err = fmt.Errorf("%w: read document: %w", ErrFetchTimeout, err)
		f.tel.ReportWarning(report_fetch_ratings, err, ticker)
		return nil, err
	}
	return selectRegion(html, f.options.RatingsSelector, url)
}

// OpenHistory loads the historical data page of ticker and waits for the
// page shell.
func (f BrowserFetcher) OpenHistory(ctx context.Context, ticker string) error {
	err := f.load(ctx, f.options.URLs.History(ticker), f.options.HistorySelector)
	if err != nil {
		f.tel.ReportWarning(report_open_history, err, ticker)
	}
	return err
}

func selectRegion(html, selector, url string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	region := doc.Find(selector)
	if region.Length() == 0 {
		return nil, fmt.Errorf("%w: %s: '%s' not present", ErrFetchTimeout, url, selector)
	}
	return region.First(), nil
}
