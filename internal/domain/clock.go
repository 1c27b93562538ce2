package domain

import (
	"fmt"
	"time"
)

// Clock is a time of day expressed as seconds since midnight,
// venue-local. Used for entry windows and session cutoffs where only
// the clock component matters, not the date.
type Clock int

// ParseClock parses "HH:MM" or "HH:MM:SS" strings. "9:45" and
// "09:45:00" are equivalent.
func ParseClock(s string) (Clock, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("parse clock %q: %w", s, err)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return Clock(h*3600 + m*60 + sec), nil
}

// ClockOf extracts the clock component of a timestamp.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// String formats the clock as HH:MM:SS.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, int(c)%3600/60, int(c)%60)
}

// OnDate anchors the clock to a calendar date in the given location.
func (c Clock) OnDate(date time.Time, loc *time.Location) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, int(c)/3600, int(c)%3600/60, int(c)%60, 0, loc)
}
