// Package wallclock converts between the 12-hour display format ("9:00 am")
// and the 24-hour storage format ("09:00") used for consultant availability.
// Values are plain wall-clock strings with no date or timezone attached.
package wallclock

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the exclusive upper bound for minutes-since-midnight.
const MinutesPerDay = 24 * 60

// FormatError reports a time string that could not be parsed.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

func formatErr(input, reason string) error {
	return &FormatError{Input: input, Reason: reason}
}

// To24Hour parses "<h>:<mm> am|pm" and returns "HH:MM".
// Case and surrounding whitespace are ignored; the space before the
// meridiem is optional ("9:00am" is accepted).
func To24Hour(time12h string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(time12h))
	if len(s) < 2 {
		return "", formatErr(time12h, "too short")
	}

	var meridiem string
	switch {
	case strings.HasSuffix(s, "am"):
		meridiem = "am"
	case strings.HasSuffix(s, "pm"):
		meridiem = "pm"
	default:
		return "", formatErr(time12h, "missing am/pm")
	}
	clock := strings.TrimSpace(strings.TrimSuffix(s, meridiem))

	hour, minute, err := splitClock(clock)
	if err != nil {
		return "", formatErr(time12h, err.Error())
	}
	if hour < 1 || hour > 12 {
		return "", formatErr(time12h, "hour must be between 1 and 12")
	}

	switch {
	case meridiem == "am" && hour == 12:
		hour = 0
	case meridiem == "pm" && hour != 12:
		hour += 12
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// To12Hour converts "HH:MM" to "h:mm am|pm".
func To12Hour(time24h string) (string, error) {
	hour, minute, err := splitClock(strings.TrimSpace(time24h))
	if err != nil {
		return "", formatErr(time24h, err.Error())
	}
	if hour > 23 {
		return "", formatErr(time24h, "hour must be between 0 and 23")
	}

	meridiem := "am"
	if hour >= 12 {
		meridiem = "pm"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, meridiem), nil
}

// Normalize12Hour returns the canonical spelling of a 12-hour time, e.g.
// " 09:00AM " becomes "9:00 am".
func Normalize12Hour(time12h string) (string, error) {
	t24, err := To24Hour(time12h)
	if err != nil {
		return "", err
	}
	return To12Hour(t24)
}

// Minutes returns minutes since midnight for a "HH:MM" string.
func Minutes(time24h string) (int, error) {
	hour, minute, err := splitClock(strings.TrimSpace(time24h))
	if err != nil {
		return 0, formatErr(time24h, err.Error())
	}
	if hour > 23 {
		return 0, formatErr(time24h, "hour must be between 0 and 23")
	}
	return hour*60 + minute, nil
}

// FromMinutes formats minutes since midnight as "HH:MM".
func FromMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Valid24Hour reports whether s is a well-formed "HH:MM" string.
func Valid24Hour(s string) bool {
	_, err := Minutes(s)
	return err == nil
}

func splitClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected h:mm")
	}
	if len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("expected h:mm")
	}
	if !digits(parts[0]) || !digits(parts[1]) {
		return 0, 0, fmt.Errorf("expected digits only")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 {
		return 0, 0, fmt.Errorf("hour is not a number")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute must be between 00 and 59")
	}
	return hour, minute, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
