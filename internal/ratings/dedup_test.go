package ratings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedup(t *testing.T) {
	a := Record{Ticker: "A", Analyst: "X", Firm: "Y", Rating: "Buy", Action: "Upgrades", PriceTarget: dec("12"), Date: NewDate(2024, time.January, 5)}
	// identical to a except for a missing price target
	aMissing := a
	aMissing.PriceTarget.Valid = false
	// numerically identical to a
	aScaled := a
	aScaled.PriceTarget = dec("12.00")
	b := Record{Ticker: "A", Analyst: "Z", Firm: "Y", Rating: "Hold", Action: "Maintains", Upside: dec("3")}
	bMissingDate := b

	cases := []struct {
		name     string
		input    []Record
		expected []Record
	}{
		{name: "empty", input: nil, expected: []Record{}},
		{name: "no duplicates", input: []Record{a, b}, expected: []Record{a, b}},
		{name: "later duplicates dropped", input: []Record{b, a, b, a}, expected: []Record{b, a}},
		{name: "missing differs from present", input: []Record{a, aMissing, aMissing}, expected: []Record{a, aMissing}},
		{name: "missing equals missing", input: []Record{b, bMissingDate}, expected: []Record{b}},
		{name: "numeric equality", input: []Record{a, aScaled}, expected: []Record{a}},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			once := Dedup(test.input)
			require.Equal(t, len(test.expected), len(once))
			for i := range once {
				require.Equal(t, test.expected[i].Key(), once[i].Key())
			}

			twice := Dedup(once)
			require.Equal(t, len(once), len(twice))
			for i := range once {
				require.Equal(t, once[i].Key(), twice[i].Key())
			}
		})
	}
}

func TestKeyDistinguishesMissing(t *testing.T) {
	present := Record{Ticker: "A", PriceTarget: dec("0")}
	missing := Record{Ticker: "A"}
	require.NotEqual(t, present.Key(), missing.Key())
	require.NotEqual(t, present.KeyHash(), missing.KeyHash())
	require.Len(t, missing.KeyHash(), 64)
}

func TestKeyFieldsDoNotShift(t *testing.T) {
	cases := []struct {
		name string
		a    Record
		b    Record
	}{
		{
			name: "separator inside a field",
			a:    Record{Ticker: "A", Analyst: "X\x1fY", Firm: "Z"},
			b:    Record{Ticker: "A", Analyst: "X", Firm: "Y\x1fZ"},
		},
		{
			name: "length prefix inside a field",
			a:    Record{Ticker: "A", Analyst: "1:X", Firm: ""},
			b:    Record{Ticker: "A", Analyst: "", Firm: "1:X"},
		},
		{
			name: "missing marker as text",
			a:    Record{Ticker: "A", Action: "-"},
			b:    Record{Ticker: "A", Action: ""},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			require.NotEqual(t, test.a.Key(), test.b.Key())
			require.Len(t, Dedup([]Record{test.a, test.b}), 2)
		})
	}
}
