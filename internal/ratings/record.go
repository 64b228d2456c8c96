package ratings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// NullDate is a calendar date that may be missing.
type NullDate struct {
	Time  time.Time
	Valid bool
}

func NewDate(year int, month time.Month, day int) NullDate {
	return NullDate{
		Time:  time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Valid: true,
	}
}

// String returns the date as YYYY-MM-DD, or an empty string if missing.
func (d NullDate) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// Record is one analyst action on one ticker.
type Record struct {
	Ticker      string
	Analyst     string
	Firm        string
	Rating      string
	Action      string
	PriceTarget decimal.NullDecimal
	Upside      decimal.NullDecimal
	Date        NullDate
}

// keyMissing never collides with a present field, which always starts with
// its length.
const keyMissing = "-"

func keyField(b *strings.Builder, value string) {
	fmt.Fprintf(b, "%d:%s", len(value), value)
}

func keyDecimal(b *strings.Builder, d decimal.NullDecimal) {
	if !d.Valid {
		b.WriteString(keyMissing)
		return
	}
	keyField(b, d.Decimal.String())
}

// Key encodes the natural key of the record, two records are duplicates
// exactly when their keys are equal. Fields are length prefixed so that no
// field content can shift into its neighbour, and missing values are encoded
// distinctly from every present value.
func (r Record) Key() string {
	var b strings.Builder
	for _, field := range []string{r.Ticker, r.Analyst, r.Firm, r.Rating, r.Action} {
		keyField(&b, field)
	}
	keyDecimal(&b, r.PriceTarget)
	keyDecimal(&b, r.Upside)
	if r.Date.Valid {
		keyField(&b, r.Date.String())
	} else {
		b.WriteString(keyMissing)
	}
	return b.String()
}

// KeyHash is the fixed length form of Key that is stored alongside the row.
func (r Record) KeyHash() string {
	sum := sha256.Sum256([]byte(r.Key()))
	return hex.EncodeToString(sum[:])
}
