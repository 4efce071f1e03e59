package availability

import (
	"github.com/consultbook/consultbook/pkg/wallclock"
)

// DefaultSlotMinutes is the size of a bookable slot.
const DefaultSlotMinutes = 30

// BookedTime is the part of an existing booking the conflict check needs.
type BookedTime struct {
	Time      string
	Cancelled bool
}

// BookedStartTimes returns the set of start times occupied by non-cancelled
// bookings. Only exact start times are recorded: a 60 minute booking at 09:00
// does not occupy the 09:30 slot.
// Cancelled covers failed and refunded bookings too (see booking.Status.FreesSlot),
// so those slots are offered again.
func BookedStartTimes(bookings []BookedTime) map[string]struct{} {
	set := make(map[string]struct{}, len(bookings))
	for _, b := range bookings {
		if b.Cancelled {
			continue
		}
		set[b.Time] = struct{}{}
	}
	return set
}

// GenerateSlots steps through each range in slotMinutes increments while a
// whole slot still fits, skipping start times present in booked. Output keeps
// range order, then chronological order within a range. A trailing remainder
// shorter than one slot is dropped. Malformed ranges yield no slots.
func GenerateSlots(ranges []TimeRange, slotMinutes int, booked map[string]struct{}) []Slot {
	if slotMinutes <= 0 {
		return []Slot{}
	}
	slots := []Slot{}
	for _, r := range ranges {
		start, err := wallclock.Minutes(r.StartTime)
		if err != nil {
			continue
		}
		end, err := wallclock.Minutes(r.EndTime)
		if err != nil {
			continue
		}
		for cur := start; cur+slotMinutes <= end; cur += slotMinutes {
			t := wallclock.FromMinutes(cur)
			if _, taken := booked[t]; taken {
				continue
			}
			display, _ := wallclock.To12Hour(t)
			slots = append(slots, Slot{StartTime: t, DisplayTime: display})
		}
	}
	return slots
}

// ExcludeBooked drops slots whose start time is in booked.
func ExcludeBooked(slots []Slot, booked map[string]struct{}) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if _, taken := booked[s.StartTime]; taken {
			continue
		}
		out = append(out, s)
	}
	return out
}
