package timeutil

import (
	"testing"
	"time"
)

func TestWholeMinutes(t *testing.T) {
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	table := []struct {
		name  string
		delta time.Duration
		want  int
	}{
		{name: "zero interval", delta: 0, want: 0},
		{name: "sub-minute floors to zero", delta: 59 * time.Second, want: 0},
		{name: "exact minute", delta: time.Minute, want: 1},
		{name: "125 seconds floors to two", delta: 125 * time.Second, want: 2},
		{name: "negative clamps to zero", delta: -10 * time.Minute, want: 0},
		{name: "multi-hour", delta: 3*time.Hour + 59*time.Second, want: 180},
	}

	for _, v := range table {
		t.Run(v.name, func(t *testing.T) {
			got := WholeMinutes(base, base.Add(v.delta))
			if got != v.want {
				t.Errorf("Expected: %d, but got: %d", v.want, got)
			}
		})
	}
}

func TestMinsToHoursAndMins(t *testing.T) {
	table := []struct {
		val      int
		wantHrs  int
		wantMins int
	}{
		{0, 0, 0},
		{59, 0, 59},
		{60, 1, 0},
		{125, 2, 5},
	}

	for _, v := range table {
		hrs, mins := MinsToHoursAndMins(v.val)
		if hrs != v.wantHrs || mins != v.wantMins {
			t.Errorf(
				"MinsToHoursAndMins(%d): expected %d:%d, but got: %d:%d",
				v.val, v.wantHrs, v.wantMins, hrs, mins,
			)
		}
	}
}

func TestSecsToMinsAndSecs(t *testing.T) {
	table := []struct {
		total    int
		wantMins int
		wantSecs int
	}{
		{0, 0, 0},
		{59, 0, 59},
		{125, 2, 5},
		{-5, 0, 0},
	}

	for _, v := range table {
		mins, secs := SecsToMinsAndSecs(v.total)
		if mins != v.wantMins || secs != v.wantSecs {
			t.Errorf(
				"SecsToMinsAndSecs(%d): expected %d:%d, but got: %d:%d",
				v.total, v.wantMins, v.wantSecs, mins, secs,
			)
		}
	}
}
