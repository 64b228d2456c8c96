package prices

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// ErrNoRows is returned when a history export holds no usable rows.
var ErrNoRows = errors.New("history export has no rows")

// Bar is one day of price history for a ticker.
type Bar struct {
	Ticker   string
	Date     time.Time
	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   sql.NullInt64
}

// csvRow mirrors the history export, the header normalizer means the tags
// match regardless of case, spacing and punctuation ("Adj. Close").
type csvRow struct {
	Date     string `csv:"date"`
	Open     string `csv:"open"`
	High     string `csv:"high"`
	Low      string `csv:"low"`
	Close    string `csv:"close"`
	AdjClose string `csv:"adjclose"`
	Volume   string `csv:"volume"`
}

func normalizeHeader(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func init() {
	gocsv.SetHeaderNormalizer(normalizeHeader)
}

var dateLayouts = []string{
	"2006-01-02",
	"Jan 2, 2006",
	"01/02/2006",
	"1/2/2006",
}

func parseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date format '%s'", text)
}

var numberCleaner = strings.NewReplacer(",", "", "$", "")

func parseDecimal(text string) (decimal.NullDecimal, error) {
	text = strings.TrimSpace(numberCleaner.Replace(text))
	if text == "" || text == "-" || strings.EqualFold(text, "n/a") {
		return decimal.NullDecimal{}, nil
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(value), nil
}

func parseVolume(text string) (sql.NullInt64, error) {
	value, err := parseDecimal(text)
	if err != nil || !value.Valid {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: value.Decimal.IntPart(), Valid: true}, nil
}

func toBar(ticker string, row csvRow) (Bar, error) {
	date, err := parseDate(row.Date)
	if err != nil {
		return Bar{}, err
	}
	bar := Bar{
		Ticker: strings.ToUpper(ticker),
		Date:   date,
	}

	fields := []struct {
		name string
		text string
		out  *decimal.NullDecimal
	}{
		{"open", row.Open, &bar.Open},
		{"high", row.High, &bar.High},
		{"low", row.Low, &bar.Low},
		{"close", row.Close, &bar.Close},
		{"adj close", row.AdjClose, &bar.AdjClose},
	}
	for _, f := range fields {
		*f.out, err = parseDecimal(f.text)
		if err != nil {
			return Bar{}, fmt.Errorf("%s '%s': %w", f.name, f.text, err)
		}
	}
	bar.Volume, err = parseVolume(row.Volume)
	if err != nil {
		return Bar{}, fmt.Errorf("volume '%s': %w", row.Volume, err)
	}
	return bar, nil
}

// ParseHistoryCSV reads a history export. Rows that cannot be parsed are
// skipped and returned as issues.
func ParseHistoryCSV(ticker string, r io.Reader) (bars []Bar, issues []error, err error) {
	var rows []csvRow
	err = gocsv.Unmarshal(r, &rows)
	if err != nil {
		return nil, nil, fmt.Errorf("read history csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoRows
	}

	for i, row := range rows {
		bar, err := toBar(ticker, row)
		if err != nil {
			issues = append(issues, fmt.Errorf("row %d: %w", i+1, err))
			continue
		}
		bars = append(bars, bar)
	}
	return bars, issues, nil
}
