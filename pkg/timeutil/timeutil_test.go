// SPDX-License-Identifier: MIT

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompact(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1d2h30m", Day + 2*time.Hour + 30*time.Minute},
		{"90s", 90 * time.Second},
		{"2w", 14 * Day},
		{"1M", 30 * Day},
		{"1y", 365 * Day},
		{"1m1M", time.Minute + Month},
		{"250ms", 250 * time.Millisecond},
		{"-5m", -5 * time.Minute},
		{" 3h ", 3 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompact(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCompact_Invalid(t *testing.T) {
	for _, in := range []string{"", "-", "d", "10", "5x", "1h30", "1.5h", "999999999999y"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseCompact(in)
			assert.ErrorIs(t, err, ErrInvalidCompact)
		})
	}
}

func TestFormatCompact(t *testing.T) {
	assert.Equal(t, "0s", FormatCompact(0))
	assert.Equal(t, "1d2h30m", FormatCompact(Day+2*time.Hour+30*time.Minute))
	assert.Equal(t, "1y1M1w1d", FormatCompact(Year+Month+Week+Day))
	assert.Equal(t, "-1s500ms", FormatCompact(-1500*time.Millisecond))
	assert.Equal(t, "0s", FormatCompact(time.Microsecond))

	for _, d := range []time.Duration{time.Millisecond, 3*Year + 17*time.Second, -Week} {
		back, err := ParseCompact(FormatCompact(d))
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}

func TestBreakdown(t *testing.T) {
	p := Breakdown(Year + 2*Month + 3*Week + 4*Day + 5*time.Hour + 6*time.Minute + 7*time.Second + 8*time.Millisecond)
	assert.Equal(t, Parts{Years: 1, Months: 2, Weeks: 3, Days: 4, Hours: 5, Minutes: 6, Seconds: 7, Milliseconds: 8}, p)
	assert.Equal(t, Year+2*Month+3*Week+4*Day+5*time.Hour+6*time.Minute+7*time.Second+8*time.Millisecond, p.Duration())
	assert.Equal(t, Parts{}, Breakdown(-time.Hour))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 7, 9, 42*int(time.Millisecond), time.UTC)

	tests := []struct {
		pattern string
		want    string
	}{
		{"MM-dd-yyyy HH:mm:ss", "03-05-2024 14:07:09"},
		{"yyyy-MM-dd_HH-mm-ss-SSS", "2024-03-05_14-07-09-042"},
		{"EEE, d MMM yy h:mm a", "Tue, 5 Mar 24 2:07 PM"},
		{"EEEE MMMM", "Tuesday March"},
		{"'at' HH'h' ''", "at 14h '"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(ts, time.UTC, tt.pattern))
		})
	}

	ny, err := time.LoadLocation("America/New_York")
	if err == nil {
		assert.Equal(t, "09:07", FormatTimestamp(ts, ny, "HH:mm"))
	}
	assert.Equal(t, "2024", FormatMillis(ts.UnixMilli(), time.UTC, "yyyy"))
}
