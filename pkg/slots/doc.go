// Package slots defines recurring per-platform publication windows and the
// allocator that assigns concrete publication timestamps against them.
//
// A TimeSlot describes a recurring daily window: a time of day, the weekdays
// it applies to, and how many posts may be published in it per day. Slots are
// held in a Calendar, which preserves caller insertion order; that order is
// the tie-break between slots sharing a time of day.
//
// The Allocator walks the calendar forward from a starting instant and
// returns the first slot-day with free capacity. Capacity counts (occupancy)
// are supplied by the caller through an OccupancyFunc, keeping this package
// free of persistence concerns.
//
// # Usage
//
//	cal := slots.NewCalendar()
//	_ = cal.Upsert(slots.TimeSlot{
//	    Platform:   "linkedin",
//	    At:         slots.MustParseTimeOfDay("09:00"),
//	    Weekdays:   slots.Workdays(),
//	    DailyLimit: 1,
//	    Enabled:    true,
//	})
//
//	alloc := slots.NewAllocator(cal)
//	ts, err := alloc.NextSlot("linkedin", time.Now(), occupancyFn)
//	if errors.Is(err, slots.ErrNoCapacity) {
//	    // no eligible slot within the horizon
//	}
package slots
