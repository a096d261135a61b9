package utils

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitlog/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	_, err := LoadLocation(timezone)
	return err == nil
}

// DayOf returns the calendar day of t as seen in loc.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(constants.DateFormat)
}

// ParseDay parses a YYYY-MM-DD string. The result is midnight UTC so that day
// arithmetic never crosses a DST boundary.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", day, err)
	}
	return t, nil
}

// NormalizeDay accepts either a plain YYYY-MM-DD value or an RFC3339
// timestamp (some drivers return DATE columns that way) and returns the
// calendar day it names, without converting between zones.
func NormalizeDay(v string) (string, error) {
	if len(v) == len(constants.DateFormat) {
		if _, err := ParseDay(v); err != nil {
			return "", err
		}
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", v, err)
	}
	return t.Format(constants.DateFormat), nil
}

// AddDays shifts a YYYY-MM-DD day by n calendar days.
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(constants.DateFormat), nil
}

// DaysBetween returns to - from in whole calendar days.
func DaysBetween(from, to string) (int, error) {
	a, err := ParseDay(from)
	if err != nil {
		return 0, err
	}
	b, err := ParseDay(to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}

// DayRange lists every calendar day from start to end inclusive, ascending.
func DayRange(start, end string) ([]string, error) {
	n, err := DaysBetween(start, end)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("range start %s is after end %s", start, end)
	}
	first, _ := ParseDay(start)
	days := make([]string, 0, n+1)
	for i := 0; i <= n; i++ {
		days = append(days, first.AddDate(0, 0, i).Format(constants.DateFormat))
	}
	return days, nil
}

// WindowStart returns the first day of the trailing window of length days
// ending at end.
func WindowStart(end string, length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("window length must be positive, got %d", length)
	}
	return AddDays(end, -(length - 1))
}

// ClampDay returns day, or limit when day falls after it.
func ClampDay(day, limit string) string {
	// YYYY-MM-DD compares lexically in calendar order
	if day > limit {
		return limit
	}
	return day
}
