package chrono

import "time"

// API is the interface that anything depending on the system clock should use.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the system clock in the exchange's timezone.
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl loads America/New_York, the calendar the ratings dates are published in.
func NewStandardImpl() (StandardImpl, error) {
	location, err := time.LoadLocation("America/New_York")
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// Today returns midnight of the current calendar day in the api's location.
func Today(api API) time.Time {
	now := api.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, api.Location())
}

// FixedImpl always returns the same instant, tests use it to pin the calendar.
type FixedImpl struct {
	At time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.At
}

func (f FixedImpl) Location() *time.Location {
	return f.At.Location()
}
