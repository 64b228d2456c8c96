package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToday(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		now      time.Time
		expected time.Time
	}{
		{
			now:      time.Date(2024, time.January, 5, 23, 59, 0, 0, loc),
			expected: time.Date(2024, time.January, 5, 0, 0, 0, 0, loc),
		},
		{
			now:      time.Date(2024, time.March, 10, 0, 0, 0, 0, loc),
			expected: time.Date(2024, time.March, 10, 0, 0, 0, 0, loc),
		},
	}

	for _, test := range cases {
		require.Equal(t, test.expected, Today(FixedImpl{At: test.now}))
	}
}

func TestStandardImplLocation(t *testing.T) {
	impl, err := NewStandardImpl()
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "America/New_York", impl.Location().String())
	require.Equal(t, impl.Location(), impl.Now().Location())
}
