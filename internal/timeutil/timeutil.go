// Package timeutil provides utility functions for time and key encoding.
package timeutil

import (
	"time"
)

const minutesInAnHour = 60

// WholeMinutes converts an interval to whole minutes, flooring partial
// minutes and clamping negative intervals to zero.
func WholeMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}

	return int(d / time.Minute)
}

// MinsToHoursAndMins expresses a minutes value in hours and mins.
func MinsToHoursAndMins(val int) (hrs, mins int) {
	hrs = val / minutesInAnHour
	mins = val % minutesInAnHour

	return
}

// SecsToMinsAndSecs splits a seconds total into minutes and seconds for
// display.
func SecsToMinsAndSecs(total int) (mins, secs int) {
	if total < 0 {
		total = 0
	}

	return total / 60, total % 60
}

// RoundToStart resets the given time to the start of the day.
func RoundToStart(t time.Time) time.Time {
	return time.Date(
		t.Year(),
		t.Month(),
		t.Day(),
		0,
		0,
		0,
		0,
		t.Location(),
	)
}

// ToKey converts a time value to a database key for Bolt.
func ToKey(t time.Time) []byte {
	return []byte(t.Format(time.RFC3339Nano))
}
