package availability

import "time"

// DateLayout is the calendar date format used throughout the API.
const DateLayout = "2006-01-02"

// ActiveDays returns the set of days that have an active availability record.
func ActiveDays(records []*ConsultantAvailability) map[Day]bool {
	days := make(map[Day]bool, len(records))
	for _, r := range records {
		if r.IsActive {
			days[r.DayOfWeek] = true
		}
	}
	return days
}

// ExpandDates walks [start, end] one day at a time and returns every date whose
// weekday is active, ascending. Booked-out dates are still returned: marking is
// per availability day, not per slot.
func ExpandDates(records []*ConsultantAvailability, start, end time.Time) []string {
	dates := []string{}
	active := ActiveDays(records)
	if len(active) == 0 {
		return dates
	}
	start = truncateDay(start)
	end = truncateDay(end)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if active[DayOf(d)] {
			dates = append(dates, d.Format(DateLayout))
		}
	}
	return dates
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
