// SPDX-License-Identifier: MIT

package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// FormatTimestamp formats t in loc using a date pattern of the form found in
// plugin configuration files, e.g. "MM-dd-yyyy HH:mm:ss" or "yyyy-MM-dd_HH-mm-ss-SSS".
//
// Supported letters: y (year), M (month; MMM/MMMM for names), d (day), E (weekday
// name), H (0-23 hour), h (1-12 hour), m (minute), s (second), S (milliseconds),
// a (AM/PM). Text inside single quotes is copied literally, '' is a quote.
// Any other character is copied as is.
func FormatTimestamp(t time.Time, loc *time.Location, pattern string) string {
	if loc != nil {
		t = t.In(loc)
	}
	var sb strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c == '\'' {
			end := i + 1
			for end < len(pattern) {
				if pattern[end] == '\'' {
					if end+1 < len(pattern) && pattern[end+1] == '\'' {
						sb.WriteByte('\'')
						end += 2
						continue
					}
					break
				}
				sb.WriteByte(pattern[end])
				end++
			}
			if end == i+1 && end < len(pattern) {
				sb.WriteByte('\'') // '' outside quoted text
			}
			i = end + 1
			continue
		}
		n := 1
		for i+n < len(pattern) && pattern[i+n] == c {
			n++
		}
		sb.WriteString(field(t, c, n))
		i += n
	}
	return sb.String()
}

func field(t time.Time, c byte, n int) string {
	switch c {
	case 'y':
		if n == 2 {
			return fmt.Sprintf("%02d", t.Year()%100)
		}
		return fmt.Sprintf("%0*d", n, t.Year())
	case 'M':
		switch {
		case n >= 4:
			return t.Month().String()
		case n == 3:
			return t.Month().String()[:3]
		default:
			return fmt.Sprintf("%0*d", n, int(t.Month()))
		}
	case 'd':
		return fmt.Sprintf("%0*d", n, t.Day())
	case 'E':
		if n >= 4 {
			return t.Weekday().String()
		}
		return t.Weekday().String()[:3]
	case 'H':
		return fmt.Sprintf("%0*d", n, t.Hour())
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return fmt.Sprintf("%0*d", n, h)
	case 'm':
		return fmt.Sprintf("%0*d", n, t.Minute())
	case 's':
		return fmt.Sprintf("%0*d", n, t.Second())
	case 'S':
		ms := fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
		if n <= 3 {
			return ms[:n]
		}
		return ms + strings.Repeat("0", n-3)
	case 'a':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	default:
		return strings.Repeat(string(c), n)
	}
}

// FormatMillis formats a Unix millisecond timestamp, see FormatTimestamp.
func FormatMillis(millis int64, loc *time.Location, pattern string) string {
	return FormatTimestamp(time.UnixMilli(millis), loc, pattern)
}
