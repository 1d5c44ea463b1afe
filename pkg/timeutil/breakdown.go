// SPDX-License-Identifier: MIT

package timeutil

import "time"

// Parts is a duration split into calendar-ish units, as shown to players
// ("2 days, 3 hours").
type Parts struct {
	Years        int64
	Months       int64
	Weeks        int64
	Days         int64
	Hours        int64
	Minutes      int64
	Seconds      int64
	Milliseconds int64
}

// Breakdown splits d into Parts, largest unit first. Negative durations break
// down to zero Parts.
func Breakdown(d time.Duration) Parts {
	if d <= 0 {
		return Parts{}
	}
	var p Parts
	take := func(size time.Duration) int64 {
		n := d / size
		d %= size
		return int64(n)
	}
	p.Years = take(Year)
	p.Months = take(Month)
	p.Weeks = take(Week)
	p.Days = take(Day)
	p.Hours = take(time.Hour)
	p.Minutes = take(time.Minute)
	p.Seconds = take(time.Second)
	p.Milliseconds = take(time.Millisecond)
	return p
}

// Duration reassembles the parts.
func (p Parts) Duration() time.Duration {
	return time.Duration(p.Years)*Year +
		time.Duration(p.Months)*Month +
		time.Duration(p.Weeks)*Week +
		time.Duration(p.Days)*Day +
		time.Duration(p.Hours)*time.Hour +
		time.Duration(p.Minutes)*time.Minute +
		time.Duration(p.Seconds)*time.Second +
		time.Duration(p.Milliseconds)*time.Millisecond
}
