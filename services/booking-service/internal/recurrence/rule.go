package recurrence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

const dateLayout = "2006-01-02"

// End bounds an expansion. A zero Until or Count means the bound is absent.
type End struct {
	Until time.Time
	Count int
}

// Rule is one of Daily, Weekly or Monthly.
type Rule interface {
	Frequency() Frequency
	every() int
	end() End
}

type Daily struct {
	Interval int
	End      End
}

type Weekly struct {
	Interval int
	Days     []time.Weekday
	End      End
}

type Monthly struct {
	Interval int
	Days     []int
	End      End
}

func (Daily) Frequency() Frequency   { return FrequencyDaily }
func (Weekly) Frequency() Frequency  { return FrequencyWeekly }
func (Monthly) Frequency() Frequency { return FrequencyMonthly }

func (r Daily) every() int   { return normInterval(r.Interval) }
func (r Weekly) every() int  { return normInterval(r.Interval) }
func (r Monthly) every() int { return normInterval(r.Interval) }

func (r Daily) end() End   { return r.End }
func (r Weekly) end() End  { return r.End }
func (r Monthly) end() End { return r.End }

func normInterval(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

type wireRule struct {
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval,omitempty"`
	WeekDays  []int  `json:"weekDays,omitempty"`
	MonthDays []int  `json:"monthDays,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	EndAfter  int    `json:"endAfter,omitempty"`
}

// Parse decodes the serialized rule stored on a booking. Empty input and JSON
// null yield a nil Rule.
func Parse(raw []byte) (Rule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var w wireRule
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if w.Interval < 0 {
		return nil, fmt.Errorf("%w: interval %d", ErrInvalidRule, w.Interval)
	}
	if w.EndAfter < 0 {
		return nil, fmt.Errorf("%w: endAfter %d", ErrInvalidRule, w.EndAfter)
	}
	end := End{Count: w.EndAfter}
	if w.EndDate != "" {
		until, err := parseDate(w.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: endDate %q", ErrInvalidRule, w.EndDate)
		}
		end.Until = until
	}

	switch Frequency(strings.ToLower(w.Frequency)) {
	case FrequencyDaily, "":
		return Daily{Interval: normInterval(w.Interval), End: end}, nil
	case FrequencyWeekly:
		days := make([]time.Weekday, 0, len(w.WeekDays))
		for _, d := range w.WeekDays {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("%w: weekday %d", ErrInvalidRule, d)
			}
			days = append(days, time.Weekday(d))
		}
		return Weekly{Interval: normInterval(w.Interval), Days: days, End: end}, nil
	case FrequencyMonthly:
		for _, d := range w.MonthDays {
			if d < 1 || d > 31 {
				return nil, fmt.Errorf("%w: month day %d", ErrInvalidRule, d)
			}
		}
		return Monthly{Interval: normInterval(w.Interval), Days: append([]int(nil), w.MonthDays...), End: end}, nil
	default:
		return nil, fmt.Errorf("%w: frequency %q", ErrInvalidRule, w.Frequency)
	}
}

// Marshal is the inverse of Parse. A nil rule encodes as nil.
func Marshal(r Rule) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	w := wireRule{Frequency: string(r.Frequency()), Interval: r.every()}
	end := r.end()
	if !end.Until.IsZero() {
		w.EndDate = end.Until.Format(dateLayout)
	}
	w.EndAfter = end.Count
	switch v := r.(type) {
	case Weekly:
		for _, d := range v.Days {
			w.WeekDays = append(w.WeekDays, int(d))
		}
	case Monthly:
		w.MonthDays = append(w.MonthDays, v.Days...)
	}
	return json.Marshal(w)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}
