package service

import (
	"fmt"
	"time"

	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/pkg/entity"
	"github.com/teambition/rrule-go"
)

var rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// buildRRule converts a repeat rule into an rrule anchored at dtstart.
// Weekday numbering is 0=Monday..6=Sunday.
func buildRRule(rule entity.RepeatRule, dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{Dtstart: dtstart}
	switch rule.Frequency {
	case entity.RepeatDaily:
		opt.Freq = rrule.DAILY
	case entity.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
		if len(rule.Weekdays) == 0 {
			return nil, errorvalues.ErrInvalidRepeatRule
		}
		for _, d := range rule.Weekdays {
			if d < 0 || d > 6 {
				return nil, errorvalues.ErrInvalidRepeatRule
			}
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
	case entity.RepeatMonthly:
		if len(rule.MonthDays) == 0 {
			return nil, errorvalues.ErrInvalidRepeatRule
		}
		for _, d := range rule.MonthDays {
			if d < 1 || d > 31 {
				return nil, errorvalues.ErrInvalidRepeatRule
			}
		}
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = rule.MonthDays
	default:
		return nil, errorvalues.ErrInvalidRepeatRule
	}
	if rule.Until != nil {
		opt.Until = *rule.Until
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, errorvalues.ErrInvalidRepeatRule
	}
	return r, nil
}

// validateRepeatRule checks the rule is expandable and its wall-clock time
// parses. Called on template creation before anything is persisted.
func validateRepeatRule(rule entity.RepeatRule) error {
	if _, err := buildRRule(rule, time.Now().UTC()); err != nil {
		return err
	}
	if rule.At != "" {
		if _, _, err := parseClock(rule.At); err != nil {
			return errorvalues.ErrInvalidRepeatRule
		}
	}
	return nil
}

// expandPeriods lists the period dates (midnight UTC) the rule expects in
// [from, to], inclusive, in chronological order.
func expandPeriods(rule entity.RepeatRule, from, to time.Time) ([]time.Time, error) {
	start := truncateToDay(from)
	r, err := buildRRule(rule, start)
	if err != nil {
		return nil, err
	}
	return r.Between(start, truncateToDay(to), true), nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseClock parses "HH:MM" wall-clock strings.
func parseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("clock value out of range: %s", s)
	}
	return h, m, nil
}

// clockOn places a wall-clock value on the given day.
func clockOn(day time.Time, clock string) (time.Time, error) {
	h, m, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()), nil
}
