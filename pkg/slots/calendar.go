package slots

import (
	"slices"
	"sync"
	"time"
)

// Calendar holds the recurring slot configuration for all platforms.
// Slots keep their insertion order per platform; that order is the allocation
// tie-break between slots sharing a time of day. Safe for concurrent use.
type Calendar struct {
	mu         sync.RWMutex
	byPlatform map[string][]TimeSlot
}

// NewCalendar creates an empty Calendar.
func NewCalendar() *Calendar {
	return &Calendar{byPlatform: make(map[string][]TimeSlot)}
}

// Upsert adds a slot or, when a slot with the same identity already exists,
// replaces its daily limit and enabled flag in place without changing its
// position in the insertion order.
func (c *Calendar) Upsert(slot TimeSlot) error {
	if err := slot.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.byPlatform[slot.Platform]
	for i, existing := range list {
		if existing.Key() == slot.Key() {
			list[i] = slot
			return nil
		}
	}
	c.byPlatform[slot.Platform] = append(list, slot)
	return nil
}

// Remove deletes the slot with the given identity.
func (c *Calendar) Remove(slot TimeSlot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.byPlatform[slot.Platform]
	for i, existing := range list {
		if existing.Key() == slot.Key() {
			c.byPlatform[slot.Platform] = slices.Delete(list, i, i+1)
			return nil
		}
	}
	return ErrSlotNotFound
}

// SetEnabled toggles the enabled flag of the slot with the given identity.
// Disabling a slot does not touch posts already assigned to it; existing
// assignments stay valid until they are next edited or redistributed.
func (c *Calendar) SetEnabled(slot TimeSlot, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.byPlatform[slot.Platform]
	for i, existing := range list {
		if existing.Key() == slot.Key() {
			list[i].Enabled = enabled
			return nil
		}
	}
	return ErrSlotNotFound
}

// Replace swaps the whole slot list of a platform, preserving the order of
// the given slice as the new insertion order.
func (c *Calendar) Replace(platform string, list []TimeSlot) error {
	for _, slot := range list {
		if err := slot.Validate(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(list) == 0 {
		delete(c.byPlatform, platform)
		return nil
	}
	c.byPlatform[platform] = slices.Clone(list)
	return nil
}

// SlotsFor returns a copy of the platform's slots in insertion order.
func (c *Calendar) SlotsFor(platform string) []TimeSlot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.byPlatform[platform])
}

// Platforms returns all platforms with at least one configured slot.
func (c *Calendar) Platforms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	platforms := make([]string, 0, len(c.byPlatform))
	for p := range c.byPlatform {
		platforms = append(platforms, p)
	}
	slices.Sort(platforms)
	return platforms
}

// SlotsAt returns the enabled slots whose recurrence matches the given
// instant exactly, in insertion order. The instant must equal the slot's
// time of day anchored on that calendar day; sub-minute offsets match
// nothing, since occupancy is counted per exact instant.
func (c *Calendar) SlotsAt(platform string, at time.Time) []TimeSlot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []TimeSlot
	for _, slot := range c.byPlatform[platform] {
		if !slot.Enabled {
			continue
		}
		if !slot.Weekdays.Contains(at.Weekday()) {
			continue
		}
		if at.Equal(slot.At.On(at)) {
			matched = append(matched, slot)
		}
	}
	return matched
}

// CapacityAt returns the combined daily limit of all enabled slots matching
// the given instant. Slots sharing a time of day are independent capacity
// buckets, so their limits add up.
func (c *Calendar) CapacityAt(platform string, at time.Time) int {
	total := 0
	for _, slot := range c.SlotsAt(platform, at) {
		total += slot.DailyLimit
	}
	return total
}
