package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

const upsertRating = `-- name: UpsertRating :exec
INSERT INTO analyst_ratings (natural_key, ticker, analyst, firm, rating, action, price_target, upside, date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (natural_key) DO UPDATE SET
    rating = excluded.rating,
    action = excluded.action,
    price_target = excluded.price_target,
    upside = excluded.upside,
    date = excluded.date
`

type UpsertRatingParams struct {
	NaturalKey  string
	Ticker      string
	Analyst     string
	Firm        string
	Rating      string
	Action      string
	PriceTarget decimal.NullDecimal
	Upside      decimal.NullDecimal
	Date        string
}

func (q *Queries) UpsertRating(ctx context.Context, arg UpsertRatingParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(upsertRating),
		arg.NaturalKey,
		arg.Ticker,
		arg.Analyst,
		arg.Firm,
		arg.Rating,
		arg.Action,
		arg.PriceTarget,
		arg.Upside,
		arg.Date,
	)
	return err
}

const getTickerRatings = `-- name: GetTickerRatings :many
SELECT id, natural_key, ticker, analyst, firm, rating, action, price_target, upside, date
FROM analyst_ratings
WHERE ticker = ?
ORDER BY date DESC, id ASC
`

func (q *Queries) GetTickerRatings(ctx context.Context, ticker string) ([]AnalystRating, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(getTickerRatings), ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AnalystRating
	for rows.Next() {
		var i AnalystRating
		if err := rows.Scan(
			&i.ID,
			&i.NaturalKey,
			&i.Ticker,
			&i.Analyst,
			&i.Firm,
			&i.Rating,
			&i.Action,
			&i.PriceTarget,
			&i.Upside,
			&i.Date,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const advanceProgress = `-- name: AdvanceProgress :exec
INSERT INTO scraping_progress (ticker, last_updated)
VALUES (?, ?)
ON CONFLICT (ticker) DO UPDATE SET
    last_updated = excluded.last_updated
WHERE excluded.last_updated > scraping_progress.last_updated
`

type AdvanceProgressParams struct {
	Ticker      string
	LastUpdated string
}

func (q *Queries) AdvanceProgress(ctx context.Context, arg AdvanceProgressParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(advanceProgress), arg.Ticker, arg.LastUpdated)
	return err
}

const trackTicker = `-- name: TrackTicker :exec
INSERT INTO scraping_progress (ticker, last_updated)
VALUES (?, ?)
ON CONFLICT (ticker) DO NOTHING
`

type TrackTickerParams struct {
	Ticker      string
	LastUpdated string
}

func (q *Queries) TrackTicker(ctx context.Context, arg TrackTickerParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(trackTicker), arg.Ticker, arg.LastUpdated)
	return err
}

const untrackTicker = `-- name: UntrackTicker :execrows
DELETE FROM scraping_progress WHERE ticker = ?
`

func (q *Queries) UntrackTicker(ctx context.Context, ticker string) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.rebind(untrackTicker), ticker)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getOldestTicker = `-- name: GetOldestTicker :one
SELECT ticker FROM scraping_progress
ORDER BY last_updated ASC, ticker ASC
LIMIT 1
`

func (q *Queries) GetOldestTicker(ctx context.Context) (string, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getOldestTicker))
	var ticker string
	err := row.Scan(&ticker)
	return ticker, err
}

const getProgress = `-- name: GetProgress :many
SELECT ticker, last_updated FROM scraping_progress
ORDER BY last_updated ASC, ticker ASC
`

func (q *Queries) GetProgress(ctx context.Context) ([]ScrapingProgress, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(getProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ScrapingProgress
	for rows.Next() {
		var i ScrapingProgress
		if err := rows.Scan(&i.Ticker, &i.LastUpdated); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTickerProgress = `-- name: GetTickerProgress :one
SELECT ticker, last_updated FROM scraping_progress
WHERE ticker = ?
`

func (q *Queries) GetTickerProgress(ctx context.Context, ticker string) (ScrapingProgress, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getTickerProgress), ticker)
	var i ScrapingProgress
	err := row.Scan(&i.Ticker, &i.LastUpdated)
	return i, err
}

const upsertPrice = `-- name: UpsertPrice :exec
INSERT INTO historical_prices (ticker, date, open, high, low, close, adj_close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ticker, date) DO UPDATE SET
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    adj_close = excluded.adj_close,
    volume = excluded.volume
`

type UpsertPriceParams struct {
	Ticker   string
	Date     string
	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   sql.NullInt64
}

func (q *Queries) UpsertPrice(ctx context.Context, arg UpsertPriceParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(upsertPrice),
		arg.Ticker,
		arg.Date,
		arg.Open,
		arg.High,
		arg.Low,
		arg.Close,
		arg.AdjClose,
		arg.Volume,
	)
	return err
}

const getTickerPrices = `-- name: GetTickerPrices :many
SELECT ticker, date, open, high, low, close, adj_close, volume
FROM historical_prices
WHERE ticker = ?
ORDER BY date ASC
`

func (q *Queries) GetTickerPrices(ctx context.Context, ticker string) ([]HistoricalPrice, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(getTickerPrices), ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []HistoricalPrice
	for rows.Next() {
		var i HistoricalPrice
		if err := rows.Scan(
			&i.Ticker,
			&i.Date,
			&i.Open,
			&i.High,
			&i.Low,
			&i.Close,
			&i.AdjClose,
			&i.Volume,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
