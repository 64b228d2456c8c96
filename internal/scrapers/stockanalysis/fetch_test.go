package stockanalysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockharvest/internal/components/testutil"
	"stockharvest/internal/ratings"

	"github.com/stretchr/testify/require"
)

const ratingsPage = `<html><body><main>
<table>
	<thead><tr><th>Analyst</th></tr></thead>
	<tbody>
		<tr><td>Jane Doe</td><td>Acme</td><td></td><td>Hold → Buy</td><td>Upgrades</td><td>$10 → $12</td><td>n/a</td><td>Jan 5, 2024</td></tr>
	</tbody>
</table>
</main></body></html>`

func testOptions(base string) FetchOptions {
	return FetchOptions{
		URLs: URLs{
			RatingsBase:  base,
			HistoryBase:  base,
			HistoryQuery: DefaultHistoryQuery,
		},
		RatingsSelector: DefaultRatingsSelector,
		HistorySelector: DefaultHistorySelector,
		PageTimeout:     time.Second,
	}
}

func TestURLs(t *testing.T) {
	urls := URLs{
		RatingsBase:  "https://example.com/stocks/",
		HistoryBase:  "https://example.com/stocks",
		HistoryQuery: "?period=daily",
	}
	require.Equal(t, "https://example.com/stocks/brk.b/ratings/", urls.Ratings("BRK.B"))
	require.Equal(t, "https://example.com/stocks/aapl/historical?period=daily", urls.History("AAPL"))

	urls.HistoryQuery = ""
	require.Equal(t, "https://example.com/stocks/aapl/historical", urls.History("aapl"))
}

func TestBrowserFetchRatings(t *testing.T) {
	page := &fakePage{html: ratingsPage}
	fetcher := NewBrowserFetcher(page, testOptions("https://example.com/stocks"), &testutil.RecordingAPI{})

	table, err := fetcher.FetchRatings(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/stocks/aapl/ratings/"}, page.navigateTo)

	records, issues := ratings.ParseTable("AAPL", table)
	require.Empty(t, issues)
	require.Len(t, records, 1)
	require.Equal(t, "Buy", records[0].Rating)
}

func TestBrowserFetchTimeout(t *testing.T) {
	page := &fakePage{blockNav: true}
	options := testOptions("https://example.com/stocks")
	options.PageTimeout = 20 * time.Millisecond
	tel := &testutil.RecordingAPI{}
	fetcher := NewBrowserFetcher(page, options, tel)

	_, err := fetcher.FetchRatings(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrFetchTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, tel.Has("warning", report_fetch_ratings))

	err = fetcher.OpenHistory(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrFetchTimeout)
	require.Equal(t, "https://example.com/stocks/aapl/historical?period=daily", page.navigateTo[1])
}

func TestBrowserFetchMissingRegion(t *testing.T) {
	page := &fakePage{html: "<html><body><main>no ratings</main></body></html>"}
	fetcher := NewBrowserFetcher(page, testOptions("https://example.com/stocks"), &testutil.RecordingAPI{})

	_, err := fetcher.FetchRatings(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrFetchTimeout)
}

func TestStaticFetchRatings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stocks/aapl/ratings/":
			w.Write([]byte(ratingsPage))
		case "/stocks/slow/ratings/":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(ratingsPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	options := testOptions(server.URL + "/stocks")
	options.PageTimeout = 100 * time.Millisecond
	fetcher, err := NewStaticFetcher(StaticOptions{
		FetchOptions:      options,
		RequestsPerSecond: 100,
	}, &testutil.RecordingAPI{})
	require.NoError(t, err)

	table, err := fetcher.FetchRatings(context.Background(), "AAPL")
	require.NoError(t, err)
	records, _ := ratings.ParseTable("AAPL", table)
	require.Len(t, records, 1)

	_, err = fetcher.FetchRatings(context.Background(), "MISSING")
	require.ErrorIs(t, err, ErrFetchTimeout)

	_, err = fetcher.FetchRatings(context.Background(), "SLOW")
	require.ErrorIs(t, err, ErrFetchTimeout)
}
