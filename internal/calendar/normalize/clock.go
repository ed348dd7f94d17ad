package normalize

import (
	"regexp"
	"strings"
	"time"
)

// The page renders three shapes of time cell: explicit clock times, a small
// closed set of special labels for untimed rows, and garbage. Special labels
// map to the start-of-day sentinel; garbage is a hard per-record failure.

var (
	clock12Pattern      = regexp.MustCompile(`^(\d{1,2}):(\d{2})(am|pm)$`)
	clock24Pattern      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clockHourOnly       = regexp.MustCompile(`^(\d{1,2})(am|pm)$`)
	multiDayPattern     = regexp.MustCompile(`^day\s+\d+$`)
	ordinalRangePattern = regexp.MustCompile(`^\d+(st|nd|rd|th)(\s*-\s*\d+(st|nd|rd|th))?$`)
)

var specialLabels = map[string]struct{}{
	"":          {},
	"all day":   {},
	"tentative": {},
	"day":       {},
	"off":       {},
}

// parseClock interprets a display time cell.
//
// Returns timed=true for an explicit clock time, timed=false (with ok=true)
// for a special label (all-day / tentative / multi-day), and ok=false when
// the cell matches neither shape.
func parseClock(display string) (hour, minute int, timed bool, ok bool) {
	s := strings.ToLower(strings.TrimSpace(display))
	s = strings.ReplaceAll(s, " ", "")

	lowered := strings.ToLower(strings.TrimSpace(display))
	if _, special := specialLabels[lowered]; special {
		return 0, 0, false, true
	}
	if multiDayPattern.MatchString(lowered) || ordinalRangePattern.MatchString(lowered) {
		return 0, 0, false, true
	}

	if m := clock12Pattern.FindStringSubmatch(s); m != nil {
		h := atoi(m[1])
		min := atoi(m[2])
		if h < 1 || h > 12 || min > 59 {
			return 0, 0, false, false
		}
		return to24Hour(h, m[3]), min, true, true
	}
	if m := clock24Pattern.FindStringSubmatch(s); m != nil {
		h := atoi(m[1])
		min := atoi(m[2])
		if h > 23 || min > 59 {
			return 0, 0, false, false
		}
		return h, min, true, true
	}
	if m := clockHourOnly.FindStringSubmatch(s); m != nil {
		h := atoi(m[1])
		if h < 1 || h > 12 {
			return 0, 0, false, false
		}
		return to24Hour(h, m[2]), 0, true, true
	}

	return 0, 0, false, false
}

func to24Hour(h int, meridiem string) int {
	if meridiem == "am" {
		if h == 12 {
			return 0
		}
		return h
	}
	if h == 12 {
		return 12
	}
	return h + 12
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// toUTC builds the scheduled instant from a display date, parsed clock time,
// and the session's verified location. The UTC calendar date falls out of
// the conversion, so midnight rollover is handled by the time package, not
// by hand.
func toUTC(date time.Time, hour, minute int, loc *time.Location) time.Time {
	local := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
	return local.UTC()
}
