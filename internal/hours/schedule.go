// Package hours parses free-text opening hours such as
// "Mon - Fri: 8:00 AM - 5:00 PM, Sat: 9AM-2PM" and answers whether a site
// is open at a given time.
package hours

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const minutesPerDay = 24 * 60

// ErrUnparseable is returned when an hours string does not follow any
// recognized layout.
var ErrUnparseable = eris.New("hours: unparseable schedule")

// Window is one opening interval applied to a set of weekdays. Open and
// Close are minutes since midnight; Close may be 1440 (end of day). A Close
// earlier than Open spans midnight into the following day.
type Window struct {
	Days  [7]bool
	Open  int
	Close int
}

// Schedule is a parsed weekly opening schedule.
type Schedule struct {
	Always  bool
	Windows []Window
}

// OpenAt reports whether the schedule is open at t, evaluated in t's location.
func (s Schedule) OpenAt(t time.Time) bool {
	if s.Always {
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	day := t.Weekday()
	prev := (day + 6) % 7

	for _, w := range s.Windows {
		if w.Open < w.Close {
			if w.Days[day] && minute >= w.Open && minute < w.Close {
				return true
			}
			continue
		}
		// Overnight window.
		if w.Days[day] && minute >= w.Open {
			return true
		}
		if w.Days[prev] && minute < w.Close {
			return true
		}
	}
	return false
}

var (
	alwaysOpenRe = regexp.MustCompile(`^(24/7|24 ?hrs?|24 hours|open 24 hours|always open)$`)
	dashRe       = regexp.MustCompile(`\s*(?:-|–|—|\bto\b|\buntil\b)\s*`)
	timeRe       = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?(am|pm)?$`)
)

// Parse parses an hours string. Segments are separated by commas,
// semicolons or newlines; each is "DAYS: OPEN - CLOSE". A segment holding
// only days carries them forward to the next segment ("Mon, Wed: 9AM-1PM").
// A time range without days applies every day.
func Parse(s string) (Schedule, error) {
	text := normalize(s)
	if text == "" {
		return Schedule{}, eris.Wrap(ErrUnparseable, "hours: empty")
	}
	if alwaysOpenRe.MatchString(text) {
		return Schedule{Always: true}, nil
	}

	var (
		sched   Schedule
		pending [7]bool
		carried bool
	)
	for _, seg := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	}) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		daysPart, timesPart := splitSegment(seg)

		var days [7]bool
		if daysPart != "" {
			parsed, err := parseDays(daysPart)
			if err != nil {
				return Schedule{}, err
			}
			days = parsed
		}
		if carried {
			for i := range days {
				days[i] = days[i] || pending[i]
			}
		}

		if timesPart == "" {
			if daysPart == "" {
				return Schedule{}, eris.Wrapf(ErrUnparseable, "hours: empty segment %q", seg)
			}
			pending, carried = days, true
			continue
		}
		pending, carried = [7]bool{}, false

		if strings.Contains(timesPart, "closed") {
			continue
		}
		if alwaysOpenRe.MatchString(timesPart) {
			if daysPart == "" && !anyDay(days) {
				return Schedule{Always: true}, nil
			}
			sched.Windows = append(sched.Windows, Window{Days: days, Open: 0, Close: minutesPerDay})
			continue
		}

		open, closeAt, err := parseRange(timesPart)
		if err != nil {
			return Schedule{}, err
		}
		if !anyDay(days) {
			days = allDays()
		}
		sched.Windows = append(sched.Windows, Window{Days: days, Open: open, Close: closeAt})
	}

	if carried {
		return Schedule{}, eris.Wrapf(ErrUnparseable, "hours: days without times in %q", s)
	}
	// A schedule where every segment is "closed" has no windows and never opens.
	return sched, nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("a.m.", "am", "p.m.", "pm", "\t", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// splitSegment separates the day spec from the time spec at the first digit
// or at a "closed"/"24" keyword.
func splitSegment(seg string) (days, times string) {
	idx := strings.IndexFunc(seg, func(r rune) bool { return r >= '0' && r <= '9' })
	for _, kw := range []string{"closed", "noon", "midnight", "open 24", "always open"} {
		if k := strings.Index(seg, kw); k >= 0 && (idx < 0 || k < idx) {
			idx = k
		}
	}
	if idx < 0 {
		return strings.Trim(seg, ": "), ""
	}
	return strings.Trim(seg[:idx], ": "), strings.TrimSpace(seg[idx:])
}

var dayAbbr = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

func parseDays(spec string) ([7]bool, error) {
	var days [7]bool
	spec = dashRe.ReplaceAllString(spec, "-")
	fields := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ' ' || r == '&' || r == '/' || r == '+'
	})
	for _, f := range fields {
		switch f {
		case "and":
			continue
		case "daily", "everyday", "all", "week":
			days = allDays()
			continue
		case "every", "day", "days":
			continue
		case "weekdays":
			for d := time.Monday; d <= time.Friday; d++ {
				days[d] = true
			}
			continue
		case "weekends", "weekend":
			days[time.Saturday], days[time.Sunday] = true, true
			continue
		}

		if from, to, ok := strings.Cut(f, "-"); ok {
			start, err := parseDay(from)
			if err != nil {
				return days, err
			}
			end, err := parseDay(to)
			if err != nil {
				return days, err
			}
			for d := start; ; d = (d + 1) % 7 {
				days[d] = true
				if d == end {
					break
				}
			}
			continue
		}

		d, err := parseDay(f)
		if err != nil {
			return days, err
		}
		days[d] = true
	}
	if !anyDay(days) {
		return days, eris.Wrapf(ErrUnparseable, "hours: no days in %q", spec)
	}
	return days, nil
}

func parseDay(token string) (time.Weekday, error) {
	token = strings.Trim(token, ".:")
	if len(token) >= 3 {
		for i, abbr := range dayAbbr {
			if strings.HasPrefix(token, abbr) {
				return time.Weekday(i), nil
			}
		}
	}
	return 0, eris.Wrapf(ErrUnparseable, "hours: unknown day %q", token)
}

func parseRange(spec string) (open, closeAt int, err error) {
	parts := dashRe.Split(spec, -1)
	if len(parts) != 2 {
		return 0, 0, eris.Wrapf(ErrUnparseable, "hours: bad range %q", spec)
	}
	open, err = parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	closeAt, err = parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if closeAt == 0 {
		closeAt = minutesPerDay
	}
	if open == closeAt {
		return 0, 0, eris.Wrapf(ErrUnparseable, "hours: empty range %q", spec)
	}
	return open, closeAt, nil
}

func parseClock(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	switch s {
	case "noon":
		return 12 * 60, nil
	case "midnight":
		return 0, nil
	}

	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, eris.Wrapf(ErrUnparseable, "hours: bad time %q", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return 0, eris.Wrapf(ErrUnparseable, "hours: bad minute in %q", s)
	}

	switch m[3] {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return 0, eris.Wrapf(ErrUnparseable, "hours: bad hour in %q", s)
		}
		hour %= 12
		if m[3] == "pm" {
			hour += 12
		}
	default:
		if hour > 24 || (hour == 24 && minute != 0) {
			return 0, eris.Wrapf(ErrUnparseable, "hours: bad hour in %q", s)
		}
	}
	return hour*60 + minute, nil
}

func anyDay(days [7]bool) bool {
	for _, d := range days {
		if d {
			return true
		}
	}
	return false
}

func allDays() [7]bool {
	return [7]bool{true, true, true, true, true, true, true}
}
