package slots

import "errors"

var (
	// ErrNoCapacity is returned when no eligible slot-day with free capacity
	// exists within the allocation horizon.
	ErrNoCapacity = errors.New("no slot capacity available within horizon")

	// ErrInvalidSlot is returned when a slot definition fails validation.
	ErrInvalidSlot = errors.New("invalid slot definition")

	// ErrSlotNotFound is returned when no slot matches the given identity.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrInvalidTimeOfDay is returned when a time-of-day string cannot be parsed.
	ErrInvalidTimeOfDay = errors.New("invalid time of day, expected HH:MM")
)
