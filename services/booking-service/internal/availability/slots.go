package availability

import (
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// canonicalGrid is the fixed daily slot grid: every 30 minutes from 09:00 to
// 18:30 with no slots at 13:00 and 13:30.
var canonicalGrid = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30", "18:00", "18:30",
}

// Grid returns a copy of the canonical daily grid.
func Grid() []string {
	out := make([]string, len(canonicalGrid))
	copy(out, canonicalGrid)
	return out
}

// AvailableSlots returns the canonical grid slots on date that no
// non-cancelled appointment occupies, in grid order. A fully booked day
// yields an empty slice.
func AvailableSlots(date string, appointments []model.Appointment) []string {
	return FilterGrid(canonicalGrid, date, appointments)
}

// FilterGrid is AvailableSlots over an arbitrary grid. Duplicate grid entries
// are emitted once.
func FilterGrid(grid []string, date string, appointments []model.Appointment) []string {
	booked := BookedTimes(date, appointments)
	out := make([]string, 0, len(grid))
	seen := make(map[string]struct{}, len(grid))
	for _, slot := range grid {
		if _, taken := booked[slot]; taken {
			continue
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out
}

// BookedTimes collects the times held on date by appointments that are not
// cancelled. Dates compare as plain calendar strings.
func BookedTimes(date string, appointments []model.Appointment) map[string]struct{} {
	booked := map[string]struct{}{}
	for _, a := range appointments {
		if a.Date != date || !a.Occupies() {
			continue
		}
		booked[a.Time] = struct{}{}
	}
	return booked
}

func OnGrid(grid []string, slot string) bool {
	for _, g := range grid {
		if g == slot {
			return true
		}
	}
	return false
}

// Interval is a half-open [Start, End) range in minutes after midnight.
type Interval struct {
	Start int
	End   int
}

// GridForDay steps through the opening window of day and keeps every slot
// [t, t+step) that ends by closing time and does not overlap the break.
// Disabled or malformed days produce an empty grid.
func GridForDay(day model.ScheduleDay, step time.Duration) []string {
	if step <= 0 {
		step = 30 * time.Minute
	}
	stepMins := int(step / time.Minute)
	out := []string{}
	if !day.Enabled || stepMins <= 0 {
		return out
	}

	open, err := model.ParseClock(day.StartTime)
	if err != nil {
		return out
	}
	closeAt, err := model.ParseClock(day.EndTime)
	if err != nil || closeAt <= open {
		return out
	}

	var busy []Interval
	if day.BreakStart != "" && day.BreakEnd != "" {
		bs, errS := model.ParseClock(day.BreakStart)
		be, errE := model.ParseClock(day.BreakEnd)
		if errS == nil && errE == nil && be > bs {
			busy = append(busy, Interval{Start: bs, End: be})
		}
	}

	for t := open; t+stepMins <= closeAt; t += stepMins {
		if overlapsAny(Interval{Start: t, End: t + stepMins}, busy) {
			continue
		}
		out = append(out, model.FormatClock(t))
	}
	return out
}

// GridForDate resolves the schedule-derived grid for a calendar date. Special
// dates and disabled weekdays are closed.
func GridForDate(date string, loc *time.Location, schedule []model.ScheduleDay, special []model.SpecialDate, step time.Duration) []string {
	for _, s := range special {
		if s.Date == date {
			return []string{}
		}
	}
	d, err := model.ParseDate(date, loc)
	if err != nil {
		return []string{}
	}
	for _, day := range schedule {
		if day.Day == int(d.Weekday()) {
			return GridForDay(day, step)
		}
	}
	return []string{}
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		// Half-open: [s,e) overlaps [bs,be) iff s < be && bs < e.
		if slot.Start < b.End && b.Start < slot.End {
			return true
		}
	}
	return false
}
