// SPDX-License-Identifier: MIT

// Package timeutil converts between durations and the compact strings used in
// plugin configuration files ("1d2h30m"), and formats timestamps with the
// date patterns those files carry ("MM-dd-yyyy HH:mm:ss").
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Calendar-ish units understood by ParseCompact. Months and years have fixed lengths.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// ErrInvalidCompact is returned for strings that are not compact durations.
var ErrInvalidCompact = errors.New("timeutil: invalid compact duration")

var units = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
	"M":  Month,
	"y":  Year,
}

// order is the largest-first sequence FormatCompact emits.
var order = []struct {
	unit string
	size time.Duration
}{
	{"y", Year}, {"M", Month}, {"w", Week}, {"d", Day},
	{"h", time.Hour}, {"m", time.Minute}, {"s", time.Second}, {"ms", time.Millisecond},
}

// ParseCompact parses strings such as "1d2h30m", "2w", "1M" or "-90s".
// Units: ms, s, m, h, d, w, M (30 days), y (365 days). Units are case sensitive.
func ParseCompact(s string) (time.Duration, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidCompact)
	}
	neg := false
	if in[0] == '-' || in[0] == '+' {
		neg = in[0] == '-'
		in = in[1:]
	}
	if in == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCompact, s)
	}

	var total time.Duration
	for in != "" {
		i := 0
		for i < len(in) && in[i] >= '0' && in[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("%w: %q: expected digits", ErrInvalidCompact, s)
		}
		num, err := strconv.ParseInt(in[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidCompact, s, err)
		}
		in = in[i:]

		unit := ""
		if strings.HasPrefix(in, "ms") {
			unit = "ms"
		} else if in != "" {
			unit = in[:1]
		}
		size, ok := units[unit]
		if !ok {
			return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidCompact, s, unit)
		}
		in = in[len(unit):]

		if num > int64(maxDuration/size) {
			return 0, fmt.Errorf("%w: %q: overflow", ErrInvalidCompact, s)
		}
		part := time.Duration(num) * size
		if total > maxDuration-part {
			return 0, fmt.Errorf("%w: %q: overflow", ErrInvalidCompact, s)
		}
		total += part
	}
	if neg {
		total = -total
	}
	return total, nil
}

const maxDuration = time.Duration(1<<63 - 1)

// FormatCompact renders d largest unit first, e.g. "1d2h30m". Precision below a
// millisecond is dropped; zero renders as "0s".
func FormatCompact(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	var sb strings.Builder
	rem := d
	if d < 0 {
		sb.WriteByte('-')
		if d == -maxDuration-1 {
			// cannot negate the minimum; shave one nanosecond off, it is dropped anyway
			rem = maxDuration
		} else {
			rem = -d
		}
	}
	wrote := false
	for _, u := range order {
		if rem < u.size {
			continue
		}
		n := rem / u.size
		rem %= u.size
		sb.WriteString(strconv.FormatInt(int64(n), 10))
		sb.WriteString(u.unit)
		wrote = true
	}
	if !wrote {
		return "0s"
	}
	return sb.String()
}
