package ratings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"stockharvest/internal/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedRow is wrapped by every error ParseRow returns.
	ErrMalformedRow = errors.New("malformed row")
	// ErrTooFewCells means no record could be produced from the row at all.
	ErrTooFewCells = fmt.Errorf("%w: too few cells", ErrMalformedRow)
)

// Cell positions of a ratings table row, column 2 is unused.
const (
	colAnalyst = iota
	colFirm
	_
	colRating
	colAction
	colPriceTarget
	colUpside
	colDate

	MinCells
)

const (
	revisionArrow = "→"
	// layout of the date cells, e.g. "Jan 5, 2024"
	sourceDateLayout = "Jan 2, 2006"
)

// afterArrow reduces "old → new" to "new".
func afterArrow(text string) string {
	idx := strings.LastIndex(text, revisionArrow)
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[idx+len(revisionArrow):])
}

func isMissing(text string) bool {
	return text == "" || strings.EqualFold(text, "n/a")
}

var numericCleaner = strings.NewReplacer("$", "", ",", "", "%", "")

// parseNumber parses a cleaned up numeric cell, an "n/a" or empty cell is
// missing without an error, any other unparsable text is missing with one.
func parseNumber(text string) (decimal.NullDecimal, error) {
	text = strings.TrimSpace(numericCleaner.Replace(text))
	if isMissing(text) {
		return decimal.NullDecimal{}, nil
	}
	text = strings.TrimPrefix(text, "+")
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(value), nil
}

func parseDate(text string) (NullDate, error) {
	t, err := time.Parse(sourceDateLayout, strings.TrimSpace(text))
	if err != nil {
		return NullDate{}, err
	}
	return NullDate{Time: t, Valid: true}, nil
}

// ParseRow converts the cell texts of one ratings table row into a Record.
//
// Rows with fewer than MinCells cells produce no record and ErrTooFewCells.
// Unparsable price target, upside or date cells become missing values, the
// record is still returned along with an error describing each such field.
func ParseRow(ticker string, cells []string) (Record, error) {
	if len(cells) < MinCells {
		return Record{}, fmt.Errorf("%w (got %d, want %d)", ErrTooFewCells, len(cells), MinCells)
	}

	record := Record{
		Ticker:  strings.ToUpper(strings.TrimSpace(ticker)),
		Analyst: strings.TrimSpace(cells[colAnalyst]),
		Firm:    strings.TrimSpace(cells[colFirm]),
		Rating:  afterArrow(cells[colRating]),
		Action:  strings.TrimSpace(cells[colAction]),
	}

	var errs []error
	var err error

	record.PriceTarget, err = parseNumber(afterArrow(cells[colPriceTarget]))
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: price target '%s': %w", ErrMalformedRow, cells[colPriceTarget], err))
	}
	record.Upside, err = parseNumber(cells[colUpside])
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: upside '%s': %w", ErrMalformedRow, cells[colUpside], err))
	}
	record.Date, err = parseDate(cells[colDate])
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: date '%s': %w", ErrMalformedRow, cells[colDate], err))
	}

	return record, errors.Join(errs...)
}

// ParseTable parses every row under the given selection (usually the ratings
// table body). Rows without any <td> are skipped. Records with recoverable
// field problems are kept, their problems are returned as issues.
func ParseTable(ticker string, table *goquery.Selection) (records []Record, issues []error) {
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := htmlutil.CellTexts(row)
		if len(cells) == 0 {
			return
		}
		record, err := ParseRow(ticker, cells)
		if err != nil {
			issues = append(issues, fmt.Errorf("row %d: %w", i, err))
		}
		if errors.Is(err, ErrTooFewCells) {
			return
		}
		records = append(records, record)
	})
	return records, issues
}
