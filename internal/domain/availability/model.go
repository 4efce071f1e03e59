package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consultbook/consultbook/pkg/wallclock"
)

// Day is a day of the week, spelled the way time.Weekday prints it ("Monday").
type Day string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
	Sunday    Day = "Sunday"
)

// Week lists the days in the order availability is reported.
var Week = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseDay accepts a full day name or its three-letter abbreviation, in any case.
func ParseDay(s string) (Day, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Week {
		full := strings.ToLower(string(d))
		if s == full || (len(s) == 3 && strings.HasPrefix(full, s)) {
			return d, nil
		}
	}
	return "", &ValidationError{Field: "day", Reason: fmt.Sprintf("unknown day %q", s)}
}

// DayOf returns the Day for a calendar date.
func DayOf(t time.Time) Day {
	return Day(t.Weekday().String())
}

// TimeRange is a [StartTime, EndTime) interval in 24-hour "HH:MM" form.
type TimeRange struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// ConsultantAvailability maps to the consultant_availability table: one row per
// consultant per day of week.
type ConsultantAvailability struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	ConsultantID uuid.UUID   `db:"consultant_id" json:"consultantId"`
	DayOfWeek    Day         `db:"day_of_week" json:"dayOfWeek"`
	IsActive     bool        `db:"is_active" json:"isActive"`
	TimeRanges   []TimeRange `db:"time_ranges" json:"timeRanges"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}

// DisplayRange is a range in 12-hour display form, as exchanged with clients.
type DisplayRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DayAvailability is the client-facing view of one day.
type DayAvailability struct {
	Day        Day            `json:"day"`
	IsActive   bool           `json:"isActive"`
	TimeRanges []DisplayRange `json:"timeRanges"`
}

// Slot is a bookable start time derived from availability. It is never persisted.
type Slot struct {
	StartTime   string `json:"startTime"`
	DisplayTime string `json:"displayTime"`
}

// toDisplay renders stored 24-hour ranges for clients.
func (a *ConsultantAvailability) toDisplay() (DayAvailability, error) {
	out := DayAvailability{Day: a.DayOfWeek, IsActive: a.IsActive, TimeRanges: []DisplayRange{}}
	if !a.IsActive {
		return out, nil
	}
	for _, r := range a.TimeRanges {
		from, err := wallclock.To12Hour(r.StartTime)
		if err != nil {
			return out, err
		}
		to, err := wallclock.To12Hour(r.EndTime)
		if err != nil {
			return out, err
		}
		out.TimeRanges = append(out.TimeRanges, DisplayRange{From: from, To: to})
	}
	return out, nil
}

// normalizeRanges converts display ranges to storage form, sorts them by start
// and rejects empty or overlapping ranges.
func normalizeRanges(in []DisplayRange) ([]TimeRange, error) {
	type span struct {
		start, end int
		r          TimeRange
	}
	spans := make([]span, 0, len(in))
	for _, dr := range in {
		start, err := wallclock.To24Hour(dr.From)
		if err != nil {
			return nil, err
		}
		end, err := wallclock.To24Hour(dr.To)
		if err != nil {
			return nil, err
		}
		sm, _ := wallclock.Minutes(start)
		em, _ := wallclock.Minutes(end)
		if em <= sm {
			return nil, &ValidationError{Field: "timeRanges", Reason: fmt.Sprintf("range %s-%s ends before it starts", dr.From, dr.To)}
		}
		spans = append(spans, span{start: sm, end: em, r: TimeRange{StartTime: start, EndTime: end}})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]TimeRange, 0, len(spans))
	for i, s := range spans {
		if i > 0 && s.start < spans[i-1].end {
			return nil, &ValidationError{Field: "timeRanges", Reason: fmt.Sprintf("range starting %s overlaps the previous range", s.r.StartTime)}
		}
		out = append(out, s.r)
	}
	return out, nil
}
