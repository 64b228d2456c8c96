// Package stockanalysis drives the ratings and historical data pages of the
// stock analysis site.
package stockanalysis

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrFetchTimeout means a page did not load or its content region never
	// appeared in time.
	ErrFetchTimeout = errors.New("fetch timeout")
	// ErrControlNotFound means no download strategy could activate the
	// download control.
	ErrControlNotFound = errors.New("download control not found")
	// ErrDownloadIncomplete means the download was triggered but the file
	// never showed up.
	ErrDownloadIncomplete = errors.New("download incomplete")
)

const (
	DefaultBaseUrl      = "https://stockanalysis.com/stocks"
	DefaultHistoryQuery = "period=daily"
	// DefaultRatingsSelector matches the body of the ratings table.
	DefaultRatingsSelector = "main table tbody"
	// DefaultHistorySelector matches the shell of the historical data page.
	DefaultHistorySelector = "main"
)

// URLs builds page urls from a ticker.
type URLs struct {
	RatingsBase  string
	HistoryBase  string
	HistoryQuery string
}

func (u URLs) Ratings(ticker string) string {
	return strings.TrimRight(u.RatingsBase, "/") + "/" + strings.ToLower(ticker) + "/ratings/"
}

func (u URLs) History(ticker string) string {
	out := strings.TrimRight(u.HistoryBase, "/") + "/" + strings.ToLower(ticker) + "/historical"
	if u.HistoryQuery != "" {
		out += "?" + strings.TrimPrefix(u.HistoryQuery, "?")
	}
	return out
}

// Page is a single browser tab.
type Page interface {
	// Navigate loads url and blocks until readySelector is present in the DOM.
	Navigate(ctx context.Context, url, readySelector string) error
	// HTML returns the outer html of the whole document.
	HTML(ctx context.Context) (string, error)
	// Click performs a native mouse click on the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Evaluate runs a script in the page and stores its result in res.
	Evaluate(ctx context.Context, script string, res any) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// RatingsFetcher returns the ratings table body of a ticker.
type RatingsFetcher interface {
	FetchRatings(ctx context.Context, ticker string) (*goquery.Selection, error)
}
