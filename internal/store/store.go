package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockharvest/internal/assert"
	"stockharvest/internal/components/telemetry"
	"stockharvest/internal/db"
	"stockharvest/internal/prices"
	"stockharvest/internal/ratings"
)

const (
	report_upsert_ratings    = "upsert-ratings"
	report_upsert_prices     = "upsert-prices"
	report_advance_freshness = "advance-freshness"
	report_track_tickers     = "track-tickers"
	report_db_query          = "db.query"
	report_missing_date      = "missing-date"
)

// ErrPersistenceFailure wraps every error coming from the backing database.
var ErrPersistenceFailure = errors.New("persistence failure")

func persistenceFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
}

// Freshness is the date a ticker was last refreshed.
type Freshness struct {
	Ticker      string
	LastUpdated time.Time
}

// Store persists rating records, price history and per-ticker freshness.
// Every write runs in its own transaction on a pooled connection.
type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	tel    telemetry.API
}

func New(database *sql.DB, dialect db.Dialect, tel telemetry.API) Store {
	assert.NotNil(database, "database")
	assert.NotNil(tel, "telemetry")

	return Store{
		qry:    db.New(database, dialect),
		makeTx: db.NewMakeTx(database, dialect),
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

func formatDate(t time.Time) string {
	return t.Format(ratings.DateLayout)
}

// UpsertRatings inserts each record or updates the mutable fields of the
// existing row with the same natural key. The batch commits atomically.
// Records with a missing date cannot be keyed in the table and are skipped.
// It returns the number of records written.
func (s Store) UpsertRatings(ctx context.Context, records []ratings.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_upsert_ratings, err)
		return 0, persistenceFailure(err)
	}
	defer discard()

	written := 0
	for _, r := range records {
		if !r.Date.Valid {
			s.tel.ReportWarning(report_missing_date, r.Ticker, r.Analyst, r.Firm)
			continue
		}
		err = tx.UpsertRating(ctx, db.UpsertRatingParams{
			NaturalKey:  r.KeyHash(),
			Ticker:      r.Ticker,
			Analyst:     r.Analyst,
			Firm:        r.Firm,
			Rating:      r.Rating,
			Action:      r.Action,
			PriceTarget: r.PriceTarget,
			Upside:      r.Upside,
			Date:        r.Date.String(),
		})
		if err != nil {
			s.tel.ReportBroken(report_upsert_ratings, err, r.Ticker)
			return 0, persistenceFailure(err)
		}
		written++
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_upsert_ratings, err, "commit")
		return 0, persistenceFailure(err)
	}
	return written, nil
}

// UpsertPriceBars writes a batch of price history atomically, rows are keyed
// by (ticker, date).
func (s Store) UpsertPriceBars(ctx context.Context, bars []prices.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_upsert_prices, err)
		return 0, persistenceFailure(err)
	}
	defer discard()

	for _, b := range bars {
		err = tx.UpsertPrice(ctx, db.UpsertPriceParams{
			Ticker:   b.Ticker,
			Date:     formatDate(b.Date),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		})
		if err != nil {
			s.tel.ReportBroken(report_upsert_prices, err, b.Ticker)
			return 0, persistenceFailure(err)
		}
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_upsert_prices, err, "commit")
		return 0, persistenceFailure(err)
	}
	return len(bars), nil
}

// AdvanceFreshness sets the freshness of ticker to asOf, creating the row if
// needed. The stored date never moves backwards.
func (s Store) AdvanceFreshness(ctx context.Context, ticker string, asOf time.Time) error {
	err := s.qry.AdvanceProgress(ctx, db.AdvanceProgressParams{
		Ticker:      strings.ToUpper(ticker),
		LastUpdated: formatDate(asOf),
	})
	if err != nil {
		s.tel.ReportBroken(report_advance_freshness, err, ticker)
		return persistenceFailure(err)
	}
	return nil
}

// TrackTickers adds tickers to the schedule with the given initial freshness.
// Tickers that are already tracked keep their freshness.
func (s Store) TrackTickers(ctx context.Context, tickers []string, since time.Time) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_track_tickers, err)
		return persistenceFailure(err)
	}
	defer discard()

	for _, ticker := range tickers {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" {
			continue
		}
		err = tx.TrackTicker(ctx, db.TrackTickerParams{
			Ticker:      ticker,
			LastUpdated: formatDate(since),
		})
		if err != nil {
			s.tel.ReportBroken(report_track_tickers, err, ticker)
			return persistenceFailure(err)
		}
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_track_tickers, err, "commit")
		return persistenceFailure(err)
	}
	return nil
}

// UntrackTicker removes ticker from the schedule, its stored ratings and
// prices are kept. ok is false if it was not tracked.
func (s Store) UntrackTicker(ctx context.Context, ticker string) (ok bool, err error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	removed, err := s.qry.UntrackTicker(ctx, ticker)
	if err != nil {
		s.tel.ReportBroken(report_track_tickers, err, ticker)
		return false, persistenceFailure(err)
	}
	return removed > 0, nil
}

// OldestTicker returns the ticker with the earliest freshness, ties are
// broken by ticker ascending. ok is false when no ticker is tracked.
func (s Store) OldestTicker(ctx context.Context) (ticker string, ok bool, err error) {
	ticker, err = s.qry.GetOldestTicker(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetOldestTicker")
		return "", false, persistenceFailure(err)
	}
	return ticker, true, nil
}

func parseStoredDate(value string) (time.Time, error) {
	// some drivers hand back a full timestamp for date-like text
	if len(value) > len(ratings.DateLayout) {
		value = value[:len(ratings.DateLayout)]
	}
	return time.Parse(ratings.DateLayout, value)
}

// Progress lists the freshness of every tracked ticker, oldest first.
func (s Store) Progress(ctx context.Context) ([]Freshness, error) {
	rows, err := s.qry.GetProgress(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetProgress")
		return nil, persistenceFailure(err)
	}
	out := make([]Freshness, 0, len(rows))
	for _, row := range rows {
		t, err := parseStoredDate(row.LastUpdated)
		if err != nil {
			s.tel.ReportWarning(report_db_query, err, "GetProgress", row.Ticker)
			continue
		}
		out = append(out, Freshness{Ticker: row.Ticker, LastUpdated: t})
	}
	return out, nil
}

// TickerFreshness returns the freshness of a single ticker, ok is false if
// the ticker is not tracked.
func (s Store) TickerFreshness(ctx context.Context, ticker string) (Freshness, bool, error) {
	row, err := s.qry.GetTickerProgress(ctx, strings.ToUpper(ticker))
	if errors.Is(err, sql.ErrNoRows) {
		return Freshness{}, false, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetTickerProgress", ticker)
		return Freshness{}, false, persistenceFailure(err)
	}
	t, err := parseStoredDate(row.LastUpdated)
	if err != nil {
		return Freshness{}, false, persistenceFailure(err)
	}
	return Freshness{Ticker: row.Ticker, LastUpdated: t}, true, nil
}

// Ratings returns the stored ratings of a ticker, newest first.
func (s Store) Ratings(ctx context.Context, ticker string) ([]ratings.Record, error) {
	rows, err := s.qry.GetTickerRatings(ctx, strings.ToUpper(ticker))
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetTickerRatings", ticker)
		return nil, persistenceFailure(err)
	}
	out := make([]ratings.Record, 0, len(rows))
	for _, row := range rows {
		record := ratings.Record{
			Ticker:      row.Ticker,
			Analyst:     row.Analyst,
			Firm:        row.Firm,
			Rating:      row.Rating,
			Action:      row.Action,
			PriceTarget: row.PriceTarget,
			Upside:      row.Upside,
		}
		t, err := parseStoredDate(row.Date)
		if err == nil {
			record.Date = ratings.NullDate{Time: t, Valid: true}
		}
		out = append(out, record)
	}
	return out, nil
}

// PriceBars returns the stored price history of a ticker, oldest first.
func (s Store) PriceBars(ctx context.Context, ticker string) ([]prices.Bar, error) {
	rows, err := s.qry.GetTickerPrices(ctx, strings.ToUpper(ticker))
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetTickerPrices", ticker)
		return nil, persistenceFailure(err)
	}
	out := make([]prices.Bar, 0, len(rows))
	for _, row := range rows {
		t, err := parseStoredDate(row.Date)
		if err != nil {
			s.tel.ReportWarning(report_db_query, err, "GetTickerPrices", row.Ticker)
			continue
		}
		out = append(out, prices.Bar{
			Ticker:   row.Ticker,
			Date:     t,
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			AdjClose: row.AdjClose,
			Volume:   row.Volume,
		})
	}
	return out, nil
}
