package slots

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeOfDay is a clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses a "HH:MM" string into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustParseTimeOfDay is like ParseTimeOfDay but panics on invalid input.
// Intended for static slot definitions in configuration code.
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Hour returns the hour component (0-23).
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component (0-59).
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Valid reports whether the value falls within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < 24*60 }

// On anchors the time of day to a concrete calendar day in that day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Weekdays is a set of week days encoded as a bitmask (bit 0 = Sunday,
// matching time.Weekday ordering).
type Weekdays uint8

// Days builds a Weekdays set from the given days.
func Days(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// Workdays returns Monday through Friday.
func Workdays() Weekdays {
	return Days(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
}

// EveryDay returns all seven days.
func EveryDay() Weekdays {
	return Days(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday)
}

// Contains reports whether the set includes the given day.
func (w Weekdays) Contains(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

// Empty reports whether the set contains no days.
func (w Weekdays) Empty() bool { return w == 0 }

// List returns the days in the set in time.Weekday order.
func (w Weekdays) List() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

func (w Weekdays) String() string {
	names := make([]string, 0, 7)
	for _, d := range w.List() {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

// ParseWeekdays parses a comma-separated list of day names ("Mon,Tue" or
// full names, case-insensitive) into a Weekdays set.
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		matched := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if part == name || part == name[:3] {
				w |= 1 << uint(d)
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSlot, part)
		}
	}
	return w, nil
}

// TimeSlot is a recurring publication window for one platform.
// Identity is the (Platform, At, Weekdays) triple; DailyLimit and Enabled are
// mutable attributes of that identity.
type TimeSlot struct {
	Platform   string    `json:"platform" yaml:"platform"`
	At         TimeOfDay `json:"at" yaml:"-"`
	Weekdays   Weekdays  `json:"weekdays" yaml:"-"`
	DailyLimit int       `json:"daily_limit" yaml:"daily_limit"`
	Enabled    bool      `json:"enabled" yaml:"enabled"`
}

// Key returns the slot identity string, stable across processes.
func (s TimeSlot) Key() string {
	return fmt.Sprintf("%s|%s|%d", s.Platform, s.At, s.Weekdays)
}

// Validate checks the slot definition against the calendar invariants.
func (s TimeSlot) Validate() error {
	if s.Platform == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidSlot)
	}
	if !s.At.Valid() {
		return fmt.Errorf("%w: time of day out of range", ErrInvalidSlot)
	}
	if s.Weekdays.Empty() {
		return fmt.Errorf("%w: weekday set is empty", ErrInvalidSlot)
	}
	if s.DailyLimit < 0 {
		return fmt.Errorf("%w: daily limit must be non-negative", ErrInvalidSlot)
	}
	return nil
}

// Occupiable reports whether the slot can accept one more post on a day that
// already holds count posts.
func (s TimeSlot) Occupiable(count int) bool {
	return s.Enabled && count < s.DailyLimit
}

// sortSlots orders slots by time of day, preserving the relative insertion
// order of slots sharing a time of day.
func sortSlots(list []TimeSlot) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].At < list[j].At
	})
}
