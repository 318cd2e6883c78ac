// Package timeparse resolves free-text time hints into absolute intervals.
// It is deliberately rule based: the engine consulting it treats the result
// as advisory and falls back to untimed events when nothing matches.
package timeparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/limbo/cadence/pkg/entity"
)

var ErrUnrecognized = errors.New("unrecognized time expression")

var clockRe = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)

type relativeDay struct {
	token  string
	offset int
}

// Longer tokens first so "day after tomorrow" wins over "tomorrow".
var relativeDays = []relativeDay{
	{"day after tomorrow", 2},
	{"tomorrow", 1},
	{"tonight", 0},
	{"today", 0},
}

var weekdayTokens = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

type daypart struct {
	token    string
	from, to int
}

var dayparts = []daypart{
	{"early morning", 6, 9},
	{"late morning", 10, 12},
	{"morning", 8, 12},
	{"noon", 11, 14},
	{"afternoon", 14, 18},
	{"evening", 18, 22},
	{"tonight", 18, 22},
	{"night", 20, 23},
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse resolves text against the reference instant in the given zone. The
// returned confidence reflects how literal the expression was: explicit
// timestamps score 1.0, clock times 0.9, day parts 0.6, bare dates 0.5.
func (p *Parser) Parse(text string, ref time.Time, loc *time.Location) (entity.Interval, float64, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(text)
	if raw == "" {
		return entity.Interval{}, 0, ErrUnrecognized
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return entity.Interval{Start: t, End: t.Add(time.Hour)}, 1.0, nil
	}

	s := strings.ToLower(raw)
	ref = ref.In(loc)
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	dayKnown := false

	for _, rd := range relativeDays {
		if strings.Contains(s, rd.token) {
			day = day.Add(time.Duration(rd.offset) * 24 * time.Hour)
			dayKnown = true
			break
		}
	}
	if !dayKnown {
		for token, wd := range weekdayTokens {
			if !containsWord(s, token) {
				continue
			}
			ahead := int(wd-ref.Weekday()+7) % 7
			if strings.Contains(s, "next "+token) {
				ahead += 7
			} else if ahead == 0 && !strings.Contains(s, "this "+token) {
				// A bare weekday matching today means the upcoming one.
				ahead = 7
			}
			day = day.Add(time.Duration(ahead) * 24 * time.Hour)
			dayKnown = true
			break
		}
	}

	if hour, minute, ok := findClock(s); ok {
		start := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
		return entity.Interval{Start: start, End: start.Add(time.Hour)}, 0.9, nil
	}
	for _, dp := range dayparts {
		if strings.Contains(s, dp.token) {
			start := day.Add(time.Duration(dp.from) * time.Hour)
			end := day.Add(time.Duration(dp.to) * time.Hour)
			return entity.Interval{Start: start, End: end}, 0.6, nil
		}
	}
	if dayKnown {
		start := day.Add(9 * time.Hour)
		return entity.Interval{Start: start, End: start.Add(time.Hour)}, 0.5, nil
	}
	return entity.Interval{}, 0, ErrUnrecognized
}

// findClock extracts an explicit clock time like "15:30", "9:00" or "3pm".
// A bare number without a colon or meridiem is too ambiguous to accept.
func findClock(s string) (int, int, bool) {
	for _, m := range clockRe.FindAllStringSubmatch(s, -1) {
		if m[2] == "" && m[3] == "" {
			continue
		}
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour > 23 {
			continue
		}
		minute := 0
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				continue
			}
		}
		switch m[3] {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 {
			continue
		}
		return hour, minute, true
	}
	return 0, 0, false
}

func containsWord(s, word string) bool {
	idx := strings.Index(s, word)
	for idx >= 0 {
		before := idx == 0 || !isLetter(s[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(s) || !isLetter(s[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(s[idx+1:], word)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
