package postgres

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/postflow/pkg/queue"
	"github.com/dmitrymomot/postflow/pkg/slots"
)

// SaveCalendar replaces the persisted slot definitions for every platform the
// calendar currently holds. Position preserves the in-memory slot order so a
// later load rebuilds the calendar with identical stacking behavior.
func (r *Repository) SaveCalendar(ctx context.Context, cal *slots.Calendar) error {
	if cal == nil {
		return queue.ErrCalendarNil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin calendar save: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM time_slots`); err != nil {
		return fmt.Errorf("clear time slots: %w", err)
	}

	for _, platform := range cal.Platforms() {
		for pos, slot := range cal.SlotsFor(platform) {
			_, err := tx.Exec(ctx, `
				INSERT INTO time_slots (platform, time_of_day, weekdays, daily_limit, enabled, position)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				slot.Platform, int(slot.At), int(slot.Weekdays), slot.DailyLimit, slot.Enabled, pos)
			if err != nil {
				return fmt.Errorf("insert time slot %s: %w", slot.Key(), err)
			}
		}
	}
	return tx.Commit(ctx)
}

// LoadCalendar reads the persisted slot definitions into a fresh calendar.
// An empty table yields an empty, usable calendar.
func (r *Repository) LoadCalendar(ctx context.Context) (*slots.Calendar, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT platform, time_of_day, weekdays, daily_limit, enabled
		FROM time_slots
		ORDER BY platform, position`)
	if err != nil {
		return nil, fmt.Errorf("load time slots: %w", err)
	}
	defer rows.Close()

	byPlatform := map[string][]slots.TimeSlot{}
	var order []string
	for rows.Next() {
		var (
			slot      slots.TimeSlot
			timeOfDay int
			weekdays  int
		)
		if err := rows.Scan(&slot.Platform, &timeOfDay, &weekdays, &slot.DailyLimit, &slot.Enabled); err != nil {
			return nil, err
		}
		slot.At = slots.TimeOfDay(timeOfDay)
		slot.Weekdays = slots.Weekdays(weekdays)
		if _, seen := byPlatform[slot.Platform]; !seen {
			order = append(order, slot.Platform)
		}
		byPlatform[slot.Platform] = append(byPlatform[slot.Platform], slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cal := slots.NewCalendar()
	for _, platform := range order {
		if err := cal.Replace(platform, byPlatform[platform]); err != nil {
			return nil, fmt.Errorf("restore %s slots: %w", platform, err)
		}
	}
	return cal, nil
}
