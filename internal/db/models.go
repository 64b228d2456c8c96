package db

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

type AnalystRating struct {
	ID          int64
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

type ScrapingProgress struct {
	Ticker      string
	LastUpdated string
}

type HistoricalPrice struct {
	Ticker   string
	Date     string
	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   sql.NullInt64
}
