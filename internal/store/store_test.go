package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"stockharvest/internal/components/testutil"
	"stockharvest/internal/db"
	"stockharvest/internal/prices"
	"stockharvest/internal/ratings"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Store, *sql.DB, *testutil.RecordingAPI) {
	database := testutil.SetupDB(t)
	tel := &testutil.RecordingAPI{}
	return New(database, db.DialectSQLite, tel), database, tel
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleRecords() []ratings.Record {
	return []ratings.Record{
		{
			Ticker:      "AAPL",
			Analyst:     "Jane Doe",
			Firm:        "Acme",
			Rating:      "Buy",
			Action:      "Upgrades",
			PriceTarget: dec("12"),
			Date:        ratings.NewDate(2024, time.January, 5),
		},
		{
			Ticker:  "AAPL",
			Analyst: "John Roe",
			Firm:    "Beta",
			Rating:  "Hold",
			Action:  "Maintains",
			Upside:  dec("-4.5"),
			Date:    ratings.NewDate(2024, time.January, 3),
		},
	}
}

func countRows(t *testing.T, database *sql.DB, table string) int {
	var n int
	err := database.QueryRow("select count(*) from " + table).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestUpsertRatingsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	written, err := s.UpsertRatings(ctx, sampleRecords())
	require.NoError(t, err)
	require.Equal(t, 2, written)
	first, err := s.Ratings(ctx, "AAPL")
	require.NoError(t, err)

	_, err = s.UpsertRatings(ctx, sampleRecords())
	require.NoError(t, err)
	second, err := s.Ratings(ctx, "AAPL")
	require.NoError(t, err)

	require.Equal(t, 2, countRows(t, database, "analyst_ratings"))
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].Key(), second[i].Key())
	}

	// newest first
	require.Equal(t, "Jane Doe", second[0].Analyst)
	require.True(t, second[0].PriceTarget.Decimal.Equal(decimal.NewFromInt(12)))
	require.False(t, second[0].Upside.Valid)
	require.Equal(t, "2024-01-05", second[0].Date.String())
	require.True(t, second[1].Upside.Decimal.Equal(decimal.RequireFromString("-4.5")))
}

func TestUpsertRatingsMissingValuesAreDistinct(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	record := sampleRecords()[0]
	withoutTarget := record
	withoutTarget.PriceTarget = decimal.NullDecimal{}

	_, err := s.UpsertRatings(ctx, []ratings.Record{record, withoutTarget, withoutTarget})
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, database, "analyst_ratings"))
}

func TestUpsertRatingsSkipsMissingDate(t *testing.T) {
	ctx := context.Background()
	s, database, tel := setup(t)

	records := sampleRecords()
	records[1].Date = ratings.NullDate{}

	written, err := s.UpsertRatings(ctx, records)
	require.NoError(t, err)
	require.Equal(t, 1, written)
	require.Equal(t, 1, countRows(t, database, "analyst_ratings"))
	require.True(t, tel.Has("warning", report_missing_date))
}

func TestUpsertRatingsAtomic(t *testing.T) {
	ctx := context.Background()
	s, database, tel := setup(t)

	_, err := database.Exec(`
		CREATE TRIGGER reject_beta BEFORE INSERT ON analyst_ratings
		WHEN NEW.firm = 'Beta'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	_, err = s.UpsertRatings(ctx, sampleRecords())
	require.ErrorIs(t, err, ErrPersistenceFailure)
	require.Equal(t, 0, countRows(t, database, "analyst_ratings"))
	require.True(t, tel.Has("broken", report_upsert_ratings))
}

func TestOldestTicker(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	_, ok, err := s.OldestTicker(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.AdvanceFreshness(ctx, "A", day(2024, time.January, 1)))
	require.NoError(t, s.AdvanceFreshness(ctx, "B", day(2024, time.January, 3)))

	ticker, ok, err := s.OldestTicker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", ticker)

	require.NoError(t, s.AdvanceFreshness(ctx, "A", day(2024, time.January, 5)))

	ticker, ok, err = s.OldestTicker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", ticker)
}

func TestOldestTickerTieBreak(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	require.NoError(t, s.TrackTickers(ctx, []string{"msft", "aapl", "goog"}, day(1970, time.January, 1)))

	ticker, ok, err := s.OldestTicker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "AAPL", ticker)
}

func TestAdvanceFreshness(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	require.NoError(t, s.AdvanceFreshness(ctx, "aapl", day(2024, time.January, 5)))
	require.NoError(t, s.AdvanceFreshness(ctx, "AAPL", day(2024, time.January, 5)))
	require.Equal(t, 1, countRows(t, database, "scraping_progress"))

	// never moves backwards
	require.NoError(t, s.AdvanceFreshness(ctx, "AAPL", day(2023, time.June, 1)))

	f, ok, err := s.TickerFreshness(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, day(2024, time.January, 5), f.LastUpdated)

	_, ok, err = s.TickerFreshness(ctx, "MSFT")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrackTickersKeepsFreshness(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	require.NoError(t, s.AdvanceFreshness(ctx, "AAPL", day(2024, time.January, 5)))
	require.NoError(t, s.TrackTickers(ctx, []string{"AAPL", " ", "MSFT"}, day(1970, time.January, 1)))

	progress, err := s.Progress(ctx)
	require.NoError(t, err)
	require.Equal(t, []Freshness{
		{Ticker: "MSFT", LastUpdated: day(1970, time.January, 1)},
		{Ticker: "AAPL", LastUpdated: day(2024, time.January, 5)},
	}, progress)
}

func TestUntrackTickerKeepsRatings(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	_, err := s.UpsertRatings(ctx, sampleRecords())
	require.NoError(t, err)
	require.NoError(t, s.AdvanceFreshness(ctx, "AAPL", day(2024, time.January, 5)))

	ok, err := s.UntrackTicker(ctx, "aapl")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.OldestTicker(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := s.Ratings(ctx, "AAPL")
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	ok, err = s.UntrackTicker(ctx, "AAPL")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpsertPriceBars(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	bars := []prices.Bar{
		{Ticker: "AAPL", Date: day(2024, time.January, 4), Close: dec("181.91"), Volume: sql.NullInt64{Int64: 100, Valid: true}},
		{Ticker: "AAPL", Date: day(2024, time.January, 5), Open: dec("184.35"), Close: dec("185.92")},
	}
	n, err := s.UpsertPriceBars(ctx, bars)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	bars[0].Close = dec("182")
	_, err = s.UpsertPriceBars(ctx, bars)
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, database, "historical_prices"))

	stored, err := s.PriceBars(ctx, "aapl")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, day(2024, time.January, 4), stored[0].Date)
	require.True(t, stored[0].Close.Decimal.Equal(decimal.NewFromInt(182)))
	require.Equal(t, int64(100), stored[0].Volume.Int64)
	require.False(t, stored[1].Volume.Valid)
	require.False(t, stored[1].High.Valid)
}
