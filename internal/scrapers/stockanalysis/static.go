package stockanalysis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"stockharvest/internal/assert"
	"stockharvest/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

type StaticOptions struct {
	FetchOptions
	UserAgent string
	// RequestsPerSecond paces outgoing requests, zero disables pacing.
	RequestsPerSecond float64
	BypassCloudflare  bool
}

// StaticFetcher reads the server rendered ratings page over plain http,
// without a browser.
type StaticFetcher struct {
	http    *resty.Client
	options StaticOptions
	tel     telemetry.API
}

func NewStaticFetcher(options StaticOptions, tel telemetry.API) (StaticFetcher, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("stockanalysis", tel)

	if options.PageTimeout <= 0 {
		options.PageTimeout = 30 * time.Second
	}

	parsedBaseUrl, err := url.Parse(options.URLs.RatingsBase)
	if err != nil {
		return StaticFetcher{}, err
	}

	httpClient := resty.New()
	if options.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	if options.UserAgent != "" {
		httpClient.SetHeader("user-agent", options.UserAgent)
	}
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(options.PageTimeout)

	if options.RequestsPerSecond > 0 {
		// burst of 1 means requests are spaced out evenly
		rateLimiter := rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)

	return StaticFetcher{
		http:    httpClient,
		options: options,
		tel:     tel,
	}, nil
}

func (f StaticFetcher) FetchRatings(ctx context.Context, ticker string) (*goquery.Selection, error) {
	url := f.options.URLs.Ratings(ticker)

	res, err := f.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrFetchTimeout, url, err)
		f.tel.ReportWarning(report_fetch_ratings, err, ticker)
		return nil, err
	}
	if res.IsError() {
		err = fmt.Errorf("%w: %s: status %s", ErrFetchTimeout, url, res.Status())
		f.tel.ReportWarning(report_fetch_ratings, err, ticker)
		return nil, err
	}

	region, err := selectRegion(string(res.Body()), f.options.RatingsSelector, url)
	if err != nil {
		f.tel.ReportWarning(report_fetch_ratings, err, ticker)
		return nil, err
	}
	return region, nil
}
