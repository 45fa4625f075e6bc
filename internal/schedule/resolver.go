// Package schedule manages recurring weekly working hours: resolving them
// for a calendar day and editing them as a whole-week unit.
package schedule

import (
	"context"
	"fmt"
	"time"

	"slotline/internal/models"
	"slotline/internal/timeutil"
)

// Window is a local wall-clock interval within one day, in minutes from
// midnight. Half-open: [Start, End).
type Window struct {
	Start int
	End   int
}

// DayWindows is the resolved availability for one staff member and one
// local calendar day.
type DayWindows struct {
	Availability []Window
	Breaks       []Window
}

// BlockSource provides the persisted recurring blocks.
type BlockSource interface {
	GetBlocksForDay(ctx context.Context, staffID int64, dayOfWeek int) ([]models.WorkingHourBlock, error)
}

// Resolver maps a staff member and a local date to that day's windows.
type Resolver struct {
	blocks BlockSource
}

// NewResolver creates a resolver backed by the given block source.
func NewResolver(blocks BlockSource) *Resolver {
	return &Resolver{blocks: blocks}
}

// Resolve returns the availability and break windows for the local calendar
// day containing date in loc. The weekday is the LOCAL weekday of that day,
// never one derived from a UTC view of the date. A staff member with no
// blocks for the weekday gets empty windows, not an error.
func (r *Resolver) Resolve(ctx context.Context, staffID int64, date time.Time, loc *time.Location) (DayWindows, error) {
	dayOfWeek := int(timeutil.LocalWeekday(date, loc))

	blocks, err := r.blocks.GetBlocksForDay(ctx, staffID, dayOfWeek)
	if err != nil {
		return DayWindows{}, fmt.Errorf("load blocks for staff %d day %d: %w", staffID, dayOfWeek, err)
	}

	var windows DayWindows
	for _, b := range blocks {
		start, err := timeutil.ParseClock(b.StartTime)
		if err != nil {
			return DayWindows{}, fmt.Errorf("block %d start: %w", b.ID, err)
		}
		end, err := timeutil.ParseClock(b.EndTime)
		if err != nil {
			return DayWindows{}, fmt.Errorf("block %d end: %w", b.ID, err)
		}
		w := Window{Start: start, End: end}
		if b.IsBreak {
			windows.Breaks = append(windows.Breaks, w)
		} else {
			windows.Availability = append(windows.Availability, w)
		}
	}
	return windows, nil
}
