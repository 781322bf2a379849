package slots

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// slotDoc is the YAML representation of a TimeSlot. Times and weekdays use
// human-editable string forms ("09:00", "Mon,Tue,Wed").
type slotDoc struct {
	Platform   string `yaml:"platform"`
	At         string `yaml:"at"`
	Weekdays   string `yaml:"weekdays"`
	DailyLimit int    `yaml:"daily_limit"`
	Enabled    *bool  `yaml:"enabled"`
}

type calendarDoc struct {
	Slots []slotDoc `yaml:"slots"`
}

// LoadCalendar reads a YAML slot configuration and builds a Calendar.
// Document order becomes the insertion order.
func LoadCalendar(r io.Reader) (*Calendar, error) {
	var doc calendarDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode slot calendar: %w", err)
	}

	cal := NewCalendar()
	for i, sd := range doc.Slots {
		at, err := ParseTimeOfDay(sd.At)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		days, err := ParseWeekdays(sd.Weekdays)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}

		enabled := true
		if sd.Enabled != nil {
			enabled = *sd.Enabled
		}

		slot := TimeSlot{
			Platform:   sd.Platform,
			At:         at,
			Weekdays:   days,
			DailyLimit: sd.DailyLimit,
			Enabled:    enabled,
		}
		if err := cal.Upsert(slot); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return cal, nil
}

// LoadCalendarFile is a convenience wrapper around LoadCalendar.
func LoadCalendarFile(path string) (*Calendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slot calendar %s: %w", path, err)
	}
	defer f.Close()
	return LoadCalendar(f)
}
