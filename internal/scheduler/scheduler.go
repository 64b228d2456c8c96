package scheduler

import (
	"context"

	"stockharvest/internal/assert"
)

// FreshnessSource reports the least recently refreshed ticker.
type FreshnessSource interface {
	OldestTicker(ctx context.Context) (ticker string, ok bool, err error)
}

// Scheduler picks exactly one ticker per tick: whichever has gone longest
// without a refresh. Since a successful refresh moves the ticker to today,
// every tracked ticker is visited once before any is visited twice.
type Scheduler struct {
	source FreshnessSource
}

func New(source FreshnessSource) Scheduler {
	assert.NotNil(source, "freshness source")
	return Scheduler{source: source}
}

// Next returns the ticker to refresh, ok is false when nothing is tracked.
func (s Scheduler) Next(ctx context.Context) (ticker string, ok bool, err error) {
	return s.source.OldestTicker(ctx)
}
