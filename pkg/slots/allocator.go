package slots

import (
	"fmt"
	"time"
)

// DefaultHorizonDays bounds how far forward the allocator searches.
// One year plus a leap day guarantees every recurring slot is visited.
const DefaultHorizonDays = 366

// OccupancyFunc returns the number of non-terminal posts currently assigned
// to the exact publication instant. The queue supplies an implementation
// backed by its storage; the allocator never counts anything itself.
type OccupancyFunc func(platform string, at time.Time) (int, error)

// Allocator computes publication timestamps against a Calendar.
// It is a pure query object: repeated calls over an unchanged calendar and
// occupancy snapshot return the same result.
type Allocator struct {
	calendar *Calendar
	horizon  int
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithHorizon overrides the search horizon in days.
func WithHorizon(days int) AllocatorOption {
	return func(a *Allocator) {
		if days > 0 {
			a.horizon = days
		}
	}
}

// NewAllocator creates an Allocator over the given calendar.
func NewAllocator(calendar *Calendar, opts ...AllocatorOption) *Allocator {
	a := &Allocator{calendar: calendar, horizon: DefaultHorizonDays}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NextSlot returns the earliest slot-day timestamp strictly after notBefore
// with free capacity. Days are walked in order; within a day, slots are
// considered by time of day and then calendar insertion order. Slots sharing
// a time of day are filled bucket by bucket in insertion order, so their
// limits accumulate at the same instant.
//
// Returns ErrNoCapacity when the horizon is exhausted.
func (a *Allocator) NextSlot(platform string, notBefore time.Time, occ OccupancyFunc) (time.Time, error) {
	if occ == nil {
		return time.Time{}, fmt.Errorf("occupancy lookup is required")
	}

	configured := a.calendar.SlotsFor(platform)
	sortSlots(configured)

	day := time.Date(notBefore.Year(), notBefore.Month(), notBefore.Day(), 0, 0, 0, 0, notBefore.Location())
	for offset := 0; offset < a.horizon; offset++ {
		current := day.AddDate(0, 0, offset)

		// Occupancy is fetched once per distinct instant; buckets at the
		// same instant consume it in insertion order.
		var (
			lastAt    time.Time
			remaining int
		)
		for _, slot := range configured {
			if !slot.Enabled || slot.DailyLimit == 0 {
				continue
			}
			if !slot.Weekdays.Contains(current.Weekday()) {
				continue
			}

			at := slot.At.On(current)
			if !at.After(notBefore) {
				continue
			}

			if !at.Equal(lastAt) {
				count, err := occ(platform, at)
				if err != nil {
					return time.Time{}, fmt.Errorf("occupancy lookup for %s at %s: %w", platform, at, err)
				}
				lastAt = at
				remaining = count
			}

			if remaining < slot.DailyLimit {
				return at, nil
			}
			remaining -= slot.DailyLimit
		}
	}

	return time.Time{}, ErrNoCapacity
}
