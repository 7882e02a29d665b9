package planner

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// Time window resolution: phrase -> concrete (start, end, basis) triple.
// Explicit literal ranges always win over relative phrases; unresolvable text
// yields no window rather than a guess.

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

const numPat = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

var (
	betweenRe    = regexp.MustCompile(`(?i)\bbetween\s+(\S+)\s+and\s+(\S+)`)
	fromToRe     = regexp.MustCompile(`(?i)\bfrom\s+(\S+)\s+to\s+(\S+)`)
	lastMonthRe  = regexp.MustCompile(`(?i)\blast\s+month\b`)
	lastQtrRe    = regexp.MustCompile(`(?i)\blast\s+quarter\b`)
	lastWeekRe   = regexp.MustCompile(`(?i)\blast\s+week\b`)
	lastYearRe   = regexp.MustCompile(`(?i)\blast\s+year\b`)
	thisYearRe   = regexp.MustCompile(`(?i)\bthis\s+year\b`)
	thisMonthRe  = regexp.MustCompile(`(?i)\bthis\s+month\b`)
	thisQtrRe    = regexp.MustCompile(`(?i)\bthis\s+quarter\b`)
	nextMonthRe  = regexp.MustCompile(`(?i)\bnext\s+month\b`)
	nextQtrRe    = regexp.MustCompile(`(?i)\bnext\s+quarter\b`)
	nextWeekRe   = regexp.MustCompile(`(?i)\bnext\s+week\b`)
	todayRe      = regexp.MustCompile(`(?i)\btoday\b`)
	lastNRe      = regexp.MustCompile(`(?i)\blast\s+` + numPat + `\s+(day|week|month|quarter|year)s?\b`)
	nextNRe      = regexp.MustCompile(`(?i)\bnext\s+` + numPat + `\s+(day|week|month|quarter|year)s?\b`)
	expiringInRe = regexp.MustCompile(`(?i)\bexpir(?:e|es|ing)\s+(?:in\s+|within\s+)?` + numPat + `\s+days?\b`)
	yearYTDRe    = regexp.MustCompile(`(?i)\b(20\d{2})\s*ytd\b`)
	ytdRe        = regexp.MustCompile(`(?i)\bytd\b|\byear\s*to\s*date\b`)
	inYearRe     = regexp.MustCompile(`(?i)\bin\s+(20\d{2})\b`)

	requestCueRe = regexp.MustCompile(`(?i)\brequest(?:ed)?(?:\s+date)?\b|\bsubmitted\b`)
	startCueRe   = regexp.MustCompile(`(?i)\bstart(?:s|ed|ing)?\b|\bbegin(?:s|ning)?\b`)
	endCueRe     = regexp.MustCompile(`(?i)\bexpir(?:e|es|ed|ing|y)\b|\bending\b|\bends?\b|\bdue\b`)
)

// ResolveTimeWindow turns a time phrase inside text into a concrete window.
// The boolean is false when no start/end pair can be determined.
func ResolveTimeWindow(text string, today time.Time) (models.TimeWindow, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return models.TimeWindow{}, false
	}
	today = truncateDay(today)
	basis := InferBasis(text)

	if start, end, ok := explicitRange(t); ok {
		return window(start, end, basis), true
	}

	start, end, ok := relativeRange(t, today)
	if !ok {
		return models.TimeWindow{}, false
	}
	return window(start, end, basis), true
}

// InferBasis picks the date column a window is evaluated against.
// "requested" cues force REQUEST_DATE, expiry cues force END_DATE, start cues
// force START_DATE; anything else defaults to the overlap predicate.
func InferBasis(text string) models.Basis {
	switch {
	case endCueRe.MatchString(text):
		return models.BasisEnd
	case requestCueRe.MatchString(text):
		return models.BasisRequest
	case startCueRe.MatchString(text):
		return models.BasisStart
	default:
		return models.BasisOverlap
	}
}

func window(start, end time.Time, basis models.Basis) models.TimeWindow {
	if end.Before(start) {
		start, end = end, start
	}
	return models.TimeWindow{Start: start, End: end, Basis: basis}
}

func explicitRange(t string) (time.Time, time.Time, bool) {
	for _, re := range []*regexp.Regexp{betweenRe, fromToRe} {
		m := re.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		start, ok1 := parseDate(m[1])
		end, ok2 := parseDate(m[2])
		if ok1 && ok2 {
			return start, end, true
		}
	}
	return time.Time{}, time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.Trim(s, ".,;")
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func relativeRange(t string, today time.Time) (time.Time, time.Time, bool) {
	switch {
	case lastMonthRe.MatchString(t):
		return lastMonthBounds(today)
	case lastQtrRe.MatchString(t):
		return lastQuarterBounds(today)
	case lastWeekRe.MatchString(t):
		return today.AddDate(0, 0, -7), today, true
	case lastYearRe.MatchString(t):
		y := today.Year() - 1
		return date(y, time.January, 1), date(y, time.December, 31), true
	case thisYearRe.MatchString(t):
		return date(today.Year(), time.January, 1), date(today.Year(), time.December, 31), true
	case thisMonthRe.MatchString(t):
		first := date(today.Year(), today.Month(), 1)
		return first, addMonthsClamped(first, 1).AddDate(0, 0, -1), true
	case thisQtrRe.MatchString(t):
		q := (int(today.Month()) - 1) / 3
		first := date(today.Year(), time.Month(q*3+1), 1)
		return first, addMonthsClamped(first, 3).AddDate(0, 0, -1), true
	case nextMonthRe.MatchString(t):
		firstNext := addMonthsClamped(date(today.Year(), today.Month(), 1), 1)
		return firstNext, addMonthsClamped(firstNext, 1).AddDate(0, 0, -1), true
	case nextQtrRe.MatchString(t):
		q := (int(today.Month()) - 1) / 3
		firstThisQ := date(today.Year(), time.Month(q*3+1), 1)
		start := addMonthsClamped(firstThisQ, 3)
		return start, addMonthsClamped(start, 3).AddDate(0, 0, -1), true
	case nextWeekRe.MatchString(t):
		return today, today.AddDate(0, 0, 7), true
	}

	if m := lastNRe.FindStringSubmatch(t); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		return shift(today, -n, m[2]), today, true
	}
	if m := nextNRe.FindStringSubmatch(t); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		return today, shift(today, n, m[2]), true
	}
	if m := expiringInRe.FindStringSubmatch(t); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		return today, today.AddDate(0, 0, n), true
	}
	if m := yearYTDRe.FindStringSubmatch(t); m != nil {
		year, _ := strconv.Atoi(m[1])
		start := date(year, time.January, 1)
		if year == today.Year() {
			return start, today, true
		}
		return start, date(year, time.December, 31), true
	}
	if ytdRe.MatchString(t) {
		return date(today.Year(), time.January, 1), today, true
	}
	if m := inYearRe.FindStringSubmatch(t); m != nil {
		year, _ := strconv.Atoi(m[1])
		return date(year, time.January, 1), date(year, time.December, 31), true
	}
	switch {
	case strings.Contains(t, "yesterday"):
		y := today.AddDate(0, 0, -1)
		return y, y, true
	case todayRe.MatchString(t):
		return today, today, true
	}
	return time.Time{}, time.Time{}, false
}

func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	n, ok := numberWords[strings.ToLower(s)]
	return n, ok
}

// shift moves d by n units. Month-grain shifts clamp to the last valid day of
// the target month instead of overflowing (Jan 31 - 1 month = Dec 31).
func shift(d time.Time, n int, unit string) time.Time {
	switch unit {
	case "day":
		return d.AddDate(0, 0, n)
	case "week":
		return d.AddDate(0, 0, 7*n)
	case "month":
		return addMonthsClamped(d, n)
	case "quarter":
		return addMonthsClamped(d, 3*n)
	case "year":
		return addMonthsClamped(d, 12*n)
	default:
		return d
	}
}

func addMonthsClamped(d time.Time, months int) time.Time {
	idx := int(d.Month()) - 1 + months
	year := d.Year() + floorDiv(idx, 12)
	month := time.Month(mod(idx, 12) + 1)
	day := d.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return date(year, month, day)
}

func lastMonthBounds(today time.Time) (time.Time, time.Time, bool) {
	firstThis := date(today.Year(), today.Month(), 1)
	lastPrev := firstThis.AddDate(0, 0, -1)
	firstPrev := date(lastPrev.Year(), lastPrev.Month(), 1)
	return firstPrev, lastPrev, true
}

// lastQuarterBounds returns the 3-month block preceding the current quarter.
// Quarter boundaries sit at months 1, 4, 7, 10.
func lastQuarterBounds(today time.Time) (time.Time, time.Time, bool) {
	q := (int(today.Month()) - 1) / 3 // 0-based current quarter
	startMonth := time.Month(q*3 + 1)
	firstThisQ := date(today.Year(), startMonth, 1)
	start := addMonthsClamped(firstThisQ, -3)
	end := firstThisQ.AddDate(0, 0, -1)
	return start, end, true
}

func daysIn(year int, month time.Month) int {
	return date(year, month+1, 1).AddDate(0, 0, -1).Day()
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	return date(t.Year(), t.Month(), t.Day())
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
