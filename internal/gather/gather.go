// Package gather defines the interface shared by market-data download jobs.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early with ctx.Err() when
	// ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange is an inclusive span of trading days to fetch.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days in the range, or 0 when End is
// before Start.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}
