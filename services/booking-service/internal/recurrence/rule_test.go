package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestParse_Empty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		rule, err := Parse([]byte(raw))
		if err != nil || rule != nil {
			t.Fatalf("expected nil rule for %q, got %v (%v)", raw, rule, err)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		`{"frequency":"yearly"}`,
		`{"frequency":"daily","interval":-1}`,
		`{"frequency":"weekly","weekDays":[7]}`,
		`{"frequency":"monthly","monthDays":[0]}`,
		`{"frequency":"daily","endDate":"next week"}`,
		`{"frequency":"daily","endAfter":-2}`,
		`{not json`,
	}
	for _, raw := range cases {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("expected ErrInvalidRule for %s, got %v", raw, err)
		}
	}
}

func TestParse_DefaultsIntervalToOne(t *testing.T) {
	rule, err := Parse([]byte(`{"frequency":"Weekly","weekDays":[2],"endDate":"2024-06-30T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w, ok := rule.(Weekly)
	if !ok {
		t.Fatalf("expected Weekly, got %T", rule)
	}
	if w.Interval != 1 || len(w.Days) != 1 || w.Days[0] != time.Tuesday {
		t.Fatalf("unexpected rule: %+v", w)
	}
	if !w.End.Until.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected until: %s", w.End.Until)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	in := Monthly{Interval: 2, Days: []int{5, 20}, End: End{Until: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Count: 4}}
	raw, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%s): %v", raw, err)
	}
	m, ok := out.(Monthly)
	if !ok || m.Interval != 2 || len(m.Days) != 2 || m.End.Count != 4 || !m.End.Until.Equal(in.End.Until) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
