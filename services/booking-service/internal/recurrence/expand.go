package recurrence

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoOccurrences      = errors.New("recurrence produces no occurrences")
	ErrTooManyOccurrences = errors.New("recurrence produces too many occurrences")
)

const (
	defaultHorizonDays = 90
	defaultMaxCount    = 52
	hardMaxCount       = 1000
	countOnlyYears     = 3
)

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Expand returns the ascending occurrence dates of rule starting at start.
// A nil rule yields exactly start. A series bounded only by an end date that
// would exceed the hard ceiling is rejected rather than cut short.
func Expand(start time.Time, rule Rule) ([]time.Time, error) {
	start = Day(start)
	if rule == nil {
		return []time.Time{start}, nil
	}

	end := rule.end()
	horizon, limit := bounds(start, end)
	every := rule.every()

	ceiling := end.Count == 0 && !end.Until.IsZero()
	walk := limit
	if ceiling {
		walk = limit + 1
	}

	var out []time.Time
	for cur := start; !cur.After(horizon) && len(out) < walk; cur = advance(rule, cur, every) {
		if includes(rule, cur) {
			out = append(out, cur)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoOccurrences
	}
	if ceiling && len(out) > limit {
		return nil, fmt.Errorf("%w: more than %d dates before %s", ErrTooManyOccurrences, limit, horizon.Format(time.DateOnly))
	}
	return out, nil
}

func bounds(start time.Time, end End) (time.Time, int) {
	var horizon time.Time
	switch {
	case !end.Until.IsZero():
		horizon = Day(end.Until)
	case end.Count > 0:
		horizon = start.AddDate(countOnlyYears, 0, 0)
	default:
		horizon = start.AddDate(0, 0, defaultHorizonDays)
	}

	limit := hardMaxCount
	switch {
	case end.Count > 0:
		limit = end.Count
	case end.Until.IsZero():
		limit = defaultMaxCount
	}
	return horizon, limit
}

func includes(rule Rule, d time.Time) bool {
	switch r := rule.(type) {
	case Weekly:
		if len(r.Days) == 0 {
			return true
		}
		for _, wd := range r.Days {
			if d.Weekday() == wd {
				return true
			}
		}
		return false
	case Monthly:
		if len(r.Days) == 0 {
			return true
		}
		for _, md := range r.Days {
			if d.Day() == md {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// advance moves to the next candidate. Rules with explicit days walk one day
// at a time within the current week (Sunday first) or month and jump
// interval-1 periods when crossing into the next one.
func advance(rule Rule, cur time.Time, every int) time.Time {
	switch r := rule.(type) {
	case Weekly:
		if len(r.Days) == 0 {
			return cur.AddDate(0, 0, 7*every)
		}
		next := cur.AddDate(0, 0, 1)
		if next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 7*(every-1))
		}
		return next
	case Monthly:
		if len(r.Days) == 0 {
			// AddDate normalizes overflow, so Jan 31 + 1 month lands in March.
			return cur.AddDate(0, every, 0)
		}
		next := cur.AddDate(0, 0, 1)
		if next.Day() == 1 {
			next = next.AddDate(0, every-1, 0)
		}
		return next
	default:
		return cur.AddDate(0, 0, every)
	}
}
