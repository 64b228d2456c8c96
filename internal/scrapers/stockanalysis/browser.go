package stockanalysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

type BrowserOptions struct {
	// Headful shows the browser window, the zero value runs headless.
	Headful     bool
	DownloadDir string
	UserAgent   string
}

// BrowserSession is a chromedp browser with a single tab. It is owned by one
// run and must be closed on every exit path.
type BrowserSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

func NewBrowserSession(options BrowserOptions) (*BrowserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !options.Headful),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("window-size", "1920,1080"),
	)
	if options.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(options.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf("chromedp: "+format, args...))
		}),
	)
	b := &BrowserSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	// the first run starts the browser process
	actions := []chromedp.Action{chromedp.Navigate("about:blank")}
	if options.DownloadDir != "" {
		err := os.MkdirAll(options.DownloadDir, 0755)
		if err != nil {
			b.Close()
			return nil, err
		}
		actions = append(actions, browser.
			SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(options.DownloadDir).
			WithEventsEnabled(true),
		)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := b.run(startCtx, actions...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return b, nil
}

// run executes actions on the tab, bounded by the deadline and cancellation
// of ctx. The tab context itself is never canceled here.
func (b *BrowserSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *BrowserSession) Navigate(ctx context.Context, url, readySelector string) error {
	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(readySelector, chromedp.ByQuery),
	)
}

func (b *BrowserSession) HTML(ctx context.Context) (string, error) {
	var out string
	err := b.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery))
	return out, err
}

func (b *BrowserSession) Click(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (b *BrowserSession) Evaluate(ctx context.Context, script string, res any) error {
	return b.run(ctx, chromedp.Evaluate(script, res))
}

func (b *BrowserSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := b.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Close shuts down the tab and the browser process, it is safe to call more
// than once.
func (b *BrowserSession) Close() {
	b.cancelTab()
	b.cancelAlloc()
}
