package stockanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockharvest/internal/assert"
	"stockharvest/internal/components/telemetry"
)

const (
	report_download_clicker = "download-clicker"
	report_await_download   = "await-download"
)

// Selectors of the download control. The markup of the historical data page
// is not stable, Attribute matches the control directly while Structural
// finds it by its position in the page.
type Selectors struct {
	Attribute  string
	Structural string
}

var DefaultSelectors = Selectors{
	Attribute:  `button[data-title="Download"]`,
	Structural: `main div.controls button:last-of-type`,
}

// Strategy is one way of locating and activating the download control.
type Strategy struct {
	Name  string
	Click func(ctx context.Context, page Page) error
}

// clickScript clicks the first element matching the selector from inside
// the page and evaluates to false if nothing matched.
func clickScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.click();
	return true;
})()`, quoted)
}

// dispatchScript fires a synthetic mouse click on the first element matching
// the selector and evaluates to false if nothing matched.
func dispatchScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.dispatchEvent(new MouseEvent("click", { bubbles: true, cancelable: true, view: window }));
	return true;
})()`, quoted)
}

func evaluateClick(ctx context.Context, page Page, script, selector string) error {
	var found bool
	err := page.Evaluate(ctx, script, &found)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no element matches '%s'", selector)
	}
	return nil
}

// DefaultStrategies returns the lookup strategies in the order they are
// tried.
func DefaultStrategies(sel Selectors) []Strategy {
	return []Strategy{
		{
			Name: "attribute-native",
			Click: func(ctx context.Context, page Page) error {
				return page.Click(ctx, sel.Attribute)
			},
		},
		{
			Name: "attribute-script",
			Click: func(ctx context.Context, page Page) error {
				return evaluateClick(ctx, page, clickScript(sel.Attribute), sel.Attribute)
			},
		},
		{
			Name: "structural-native",
			Click: func(ctx context.Context, page Page) error {
				return page.Click(ctx, sel.Structural)
			},
		},
		{
			Name: "structural-dispatch",
			Click: func(ctx context.Context, page Page) error {
				return evaluateClick(ctx, page, dispatchScript(sel.Structural), sel.Structural)
			},
		},
	}
}

// DownloadClicker activates the download control by trying each strategy in
// order until one succeeds.
type DownloadClicker struct {
	page       Page
	strategies []Strategy
	// attemptTimeout bounds each strategy, a native click waits for its
	// element to become visible so a missing element would block otherwise.
	attemptTimeout time.Duration
	tel            telemetry.API
}

func NewDownloadClicker(page Page, strategies []Strategy, attemptTimeout time.Duration, tel telemetry.API) DownloadClicker {
	assert.NotNil(page, "page")
	assert.NotNil(tel, "telemetry")
	return DownloadClicker{
		page:           page,
		strategies:     strategies,
		attemptTimeout: attemptTimeout,
		tel:            telemetry.NewScopedAPI("stockanalysis", tel),
	}
}

func (c DownloadClicker) attempt(ctx context.Context, s Strategy) error {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}
	return s.Click(ctx, c.page)
}

// Click returns the name of the first strategy that activated the control,
// or ErrControlNotFound joined with the error of every strategy.
func (c DownloadClicker) Click(ctx context.Context) (string, error) {
	var errs []error
	for _, s := range c.strategies {
		err := c.attempt(ctx, s)
		if err == nil {
			c.tel.ReportDebug("download control clicked", s.Name)
			return s.Name, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.tel.ReportDebug("download strategy failed", s.Name, err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}

	err := fmt.Errorf("%w: %w", ErrControlNotFound, errors.Join(errs...))
	c.tel.ReportWarning(report_download_clicker, err)
	return "", err
}

type DownloadOptions struct {
	// Dir is where the browser saves downloads.
	Dir string
	// GenericName is the file name the site gives every export.
	GenericName string
	// Settle is how long to wait after the click before looking for the file.
	Settle time.Duration
	// Wait is how long to keep looking for the file after settling.
	Wait         time.Duration
	PollInterval time.Duration
}

// HistoryOpener loads the historical data page of a ticker.
type HistoryOpener interface {
	OpenHistory(ctx context.Context, ticker string) error
}

// HistoryDownloader exports the historical data of a ticker into
// <Dir>/<TICKER>.csv.
type HistoryDownloader struct {
	opener  HistoryOpener
	clicker DownloadClicker
	options DownloadOptions
	tel     telemetry.API
}

func NewHistoryDownloader(opener HistoryOpener, clicker DownloadClicker, options DownloadOptions, tel telemetry.API) HistoryDownloader {
	assert.NotNil(opener, "history opener")
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(options.Dir, "download dir")
	assert.NotEmptyStr(options.GenericName, "download name")
	if options.PollInterval <= 0 {
		options.PollInterval = 250 * time.Millisecond
	}
	return HistoryDownloader{
		opener:  opener,
		clicker: clicker,
		options: options,
		tel:     telemetry.NewScopedAPI("stockanalysis", tel),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitDownload waits for the settle duration, then polls for the generic
// download file until the wait duration runs out.
func (d HistoryDownloader) AwaitDownload(ctx context.Context) (string, error) {
	path := filepath.Join(d.options.Dir, d.options.GenericName)

	err := sleep(ctx, d.options.Settle)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(d.options.Wait)
	for {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if time.Now().After(deadline) {
			err = fmt.Errorf("%w: '%s' did not appear within %s", ErrDownloadIncomplete, path, d.options.Settle+d.options.Wait)
			d.tel.ReportWarning(report_await_download, err)
			return "", err
		}
		err = sleep(ctx, d.options.PollInterval)
		if err != nil {
			return "", err
		}
	}
}

// Download opens the historical data page of ticker, triggers the export and
// renames the downloaded file to <TICKER>.csv, replacing any previous export.
func (d HistoryDownloader) Download(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(ticker)

	// a leftover export from an earlier failed cycle would be mistaken for
	// this one
	generic := filepath.Join(d.options.Dir, d.options.GenericName)
	err := os.Remove(generic)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale download: %w", err)
	}

	err = d.opener.OpenHistory(ctx, ticker)
	if err != nil {
		return "", err
	}

	_, err = d.clicker.Click(ctx)
	if err != nil {
		return "", err
	}

	downloaded, err := d.AwaitDownload(ctx)
	if err != nil {
		return "", err
	}

	target := filepath.Join(d.options.Dir, ticker+".csv")
	err = os.Remove(target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("replace %s: %w", target, err)
	}
	err = os.Rename(downloaded, target)
	if err != nil {
		return "", fmt.Errorf("rename download: %w", err)
	}
	return target, nil
}
