package appointment

import (
	"fmt"
	"sort"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalidArgument("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf keeps the calendar date of t as seen in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Weekday maps a date onto the Monday=0 ... Sunday=6 convention.
func Weekday(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// validClock accepts zero-padded 24-hour HH:MM only, so that plain string
// comparison orders clock values correctly.
func validClock(s string) bool {
	if len(s) != len(ClockLayout) {
		return false
	}
	_, err := time.Parse(ClockLayout, s)
	return err == nil
}

func checkRange(start, end string) error {
	if !validClock(start) {
		return fmt.Errorf("start_time %q must be HH:MM", start)
	}
	if !validClock(end) {
		return fmt.Errorf("end_time %q must be HH:MM", end)
	}
	if start >= end {
		return fmt.Errorf("start_time %s must be before end_time %s", start, end)
	}
	return nil
}

type interval struct {
	start, end string
}

// overlaps tests half-open [start, end) ranges.
func (a interval) overlaps(b interval) bool {
	return a.start < b.end && a.end > b.start
}

func (a interval) contains(b interval) bool {
	return a.start <= b.start && b.end <= a.end
}

// subtract removes every booked range from window and returns what is left,
// in start order.
func subtract(window interval, booked []interval) []interval {
	sorted := make([]interval, 0, len(booked))
	for _, b := range booked {
		if window.overlaps(b) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var free []interval
	cursor := window.start
	for _, b := range sorted {
		if b.start > cursor {
			free = append(free, interval{start: cursor, end: b.start})
		}
		if b.end > cursor {
			cursor = b.end
		}
	}
	if cursor < window.end {
		free = append(free, interval{start: cursor, end: window.end})
	}
	return free
}
