// Package slots turns resolved working hours and existing appointments
// into the bookable slot sequence for one staff member and one local day.
package slots

import (
	"sort"
	"time"

	"slotline/internal/models"
	"slotline/internal/schedule"
	"slotline/internal/timeutil"
)

// Generate produces the slot sequence for one local calendar day.
//
// Candidates step through each availability window in duration-sized
// increments and must fit entirely inside the window. A candidate is
// dropped when its local interval touches a break window or its start is
// not strictly in the future. It is marked occupied when its universal
// interval overlaps an existing appointment; the occupying appointment
// stays visible, never hidden. Appointments that no window covers anymore
// (the schedule changed after they were booked) are appended as synthetic
// occupied entries so nothing on the books disappears. The result is
// sorted ascending by start instant.
//
// excludeID removes one appointment from the occupied set; rescheduling
// passes the appointment being moved so it cannot block itself.
func Generate(
	windows schedule.DayWindows,
	appointments []models.Appointment,
	date time.Time,
	durationMin int,
	loc *time.Location,
	now time.Time,
	excludeID int64,
) []models.Slot {
	local := date.In(loc)
	year, month, day := local.Year(), local.Month(), local.Day()

	active := make([]models.Appointment, 0, len(appointments))
	for _, a := range appointments {
		if a.ID == excludeID || !a.Blocks() {
			continue
		}
		active = append(active, a)
	}

	var result []models.Slot
	covered := make(map[int64]bool) // appointment IDs already represented

	for _, w := range windows.Availability {
		for offset := w.Start; offset+durationMin <= w.End; offset += durationMin {
			localStart := offset
			localEnd := offset + durationMin

			if overlapsAnyWindow(localStart, localEnd, windows.Breaks) {
				continue
			}

			startUTC := timeutil.ToUniversal(year, month, day, localStart/60, localStart%60, 0, loc)
			endUTC := timeutil.ToUniversal(year, month, day, localEnd/60, localEnd%60, 0, loc)

			if !startUTC.After(now) {
				continue
			}

			slot := models.Slot{
				StartUTC:  startUTC,
				EndUTC:    endUTC,
				Label:     timeutil.FormatLocal(startUTC, loc),
				Available: true,
				Status:    models.SlotFree,
			}
			for _, a := range active {
				if a.StartTime.Before(endUTC) && startUTC.Before(a.EndTime) {
					slot.Available = false
					slot.Status = models.SlotOccupied
					slot.AppointmentID = a.ID
					slot.ClientName = a.ClientName
					covered[a.ID] = true
					break
				}
			}
			result = append(result, slot)
		}
	}

	// Orphaned appointments: booked before the schedule was edited, now
	// outside every window. They must stay visible.
	for _, a := range active {
		if covered[a.ID] {
			continue
		}
		result = append(result, models.Slot{
			StartUTC:      a.StartTime,
			EndUTC:        a.EndTime,
			Label:         timeutil.FormatLocal(a.StartTime, loc),
			Available:     false,
			Status:        models.SlotOccupied,
			AppointmentID: a.ID,
			ClientName:    a.ClientName,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartUTC.Before(result[j].StartUTC)
	})
	return result
}

// overlapsAnyWindow applies the half-open interval test to local-minute
// windows: [s1,e1) overlaps [s2,e2) iff s1 < e2 && s2 < e1.
func overlapsAnyWindow(start, end int, windows []schedule.Window) bool {
	for _, w := range windows {
		if start < w.End && w.Start < end {
			return true
		}
	}
	return false
}

// FreeOnly filters a slot sequence down to bookable entries.
func FreeOnly(all []models.Slot) []models.Slot {
	var free []models.Slot
	for _, s := range all {
		if s.Available {
			free = append(free, s)
		}
	}
	return free
}
