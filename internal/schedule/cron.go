// Package schedule implements the 5-field POSIX cron matcher: standard
// minute/hour/day-of-month/month/day-of-week syntax, with the classic
// dom-OR-dow rule when both fields are restricted. robfig/cron/v3 is
// used elsewhere only to sanity-check expression syntax at
// job-registration time — it has no API for `previous_at_or_before`/
// `next_after` or for introspecting whether a field was the literal "*",
// so the matching engine itself is hand-rolled here.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field is one expanded cron field: the set of accepted values plus
// whether the token was "*" or otherwise covers the field's whole range
// (needed for the dom/dow OR rule).
type Field struct {
	name    string
	min     int
	max     int
	values  map[int]bool
	RawAny  bool
}

func parseField(name, token string, min, max int, allowDow7 bool) (Field, error) {
	text := strings.TrimSpace(token)
	if text == "" {
		return Field{}, fmt.Errorf("empty token for field %q", name)
	}

	rawAny := text == "*"
	values := map[int]bool{}

	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Field{}, fmt.Errorf("empty list part in field %q", name)
		}
		expanded, err := expandPart(part, name, min, max, allowDow7)
		if err != nil {
			return Field{}, err
		}
		for v := range expanded {
			values[v] = true
		}
	}

	if len(values) == 0 {
		return Field{}, fmt.Errorf("field %q resolves to empty values", name)
	}

	if !rawAny && len(values) == max-min+1 {
		full := true
		for v := min; v <= max; v++ {
			if !values[v] {
				full = false
				break
			}
		}
		rawAny = full
	}

	return Field{name: name, min: min, max: max, values: values, RawAny: rawAny}, nil
}

func (f Field) contains(v int) bool { return f.values[v] }

func normalizeDow(v int) int {
	if v == 7 {
		return 0
	}
	return v
}

func expandPart(part, field string, min, max int, allowDow7 bool) (map[int]bool, error) {
	step := 1
	base := part
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		base = part[:idx]
		stepText := part[idx+1:]
		s, err := strconv.Atoi(stepText)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q for field %q", stepText, field)
		}
		if s <= 0 {
			return nil, fmt.Errorf("step must be > 0 in field %q", field)
		}
		step = s
	}

	var values []int
	switch {
	case base == "*":
		for v := min; v <= max; v++ {
			values = append(values, v)
		}
	case strings.Contains(base, "-"):
		parts := strings.SplitN(base, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q for field %q", parts[0], field)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q for field %q", parts[1], field)
		}
		if end < start {
			return nil, fmt.Errorf("invalid range %q for field %q", base, field)
		}
		for v := start; v <= end; v++ {
			values = append(values, v)
		}
	default:
		v, err := strconv.Atoi(base)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q for field %q", base, field)
		}
		values = []int{v}
	}

	upper := max
	if allowDow7 {
		upper = 7
	}

	out := map[int]bool{}
	for idx, raw := range values {
		if idx%step != 0 {
			continue
		}
		if raw < min || raw > upper {
			return nil, fmt.Errorf("value %d out of range for field %q", raw, field)
		}
		normalized := raw
		if allowDow7 {
			normalized = normalizeDow(raw)
		}
		if normalized < min || normalized > max {
			return nil, fmt.Errorf("value %d out of range for field %q", normalized, field)
		}
		out[normalized] = true
	}
	return out, nil
}

// Schedule is a parsed 5-field cron expression.
type Schedule struct {
	Expression string
	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field
}

// Parse parses a standard "minute hour day-of-month month day-of-week"
// expression, with day-of-week 7 treated as 0 (Sunday).
func Parse(expression string) (Schedule, error) {
	text := strings.TrimSpace(expression)
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron expression must contain exactly 5 fields: minute hour day month weekday")
	}

	minute, err := parseField("minute", fields[0], 0, 59, false)
	if err != nil {
		return Schedule{}, err
	}
	hour, err := parseField("hour", fields[1], 0, 23, false)
	if err != nil {
		return Schedule{}, err
	}
	dom, err := parseField("day_of_month", fields[2], 1, 31, false)
	if err != nil {
		return Schedule{}, err
	}
	month, err := parseField("month", fields[3], 1, 12, false)
	if err != nil {
		return Schedule{}, err
	}
	dow, err := parseField("day_of_week", fields[4], 0, 6, true)
	if err != nil {
		return Schedule{}, err
	}

	return Schedule{
		Expression: text,
		Minute:     minute,
		Hour:       hour,
		DayOfMonth: dom,
		Month:      month,
		DayOfWeek:  dow,
	}, nil
}

// cronWeekday converts Go's time.Weekday (Sunday=0..Saturday=6) — which is
// already cron-numbered — returned as-is for clarity at call sites.
func cronWeekday(t time.Time) int { return int(t.Weekday()) }

// Matches reports whether dt (truncated to the minute) satisfies the
// schedule, applying the dom-OR-dow rule when both fields are restricted.
func (s Schedule) Matches(dt time.Time) bool {
	current := dt.Truncate(time.Minute)

	if !s.Minute.contains(current.Minute()) {
		return false
	}
	if !s.Hour.contains(current.Hour()) {
		return false
	}
	if !s.Month.contains(int(current.Month())) {
		return false
	}

	domMatch := s.DayOfMonth.contains(current.Day())
	dowMatch := s.DayOfWeek.contains(cronWeekday(current))

	switch {
	case s.DayOfMonth.RawAny && s.DayOfWeek.RawAny:
		return true
	case s.DayOfMonth.RawAny:
		return dowMatch
	case s.DayOfWeek.RawAny:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

const defaultMaxMinutes = 527040 // ~366 days, matches the original's search bound

// NextAfter scans forward minute-by-minute for the next match strictly
// after dt. Returns false if none is found within maxMinutes minutes.
func (s Schedule) NextAfter(dt time.Time, maxMinutes int) (time.Time, bool) {
	if maxMinutes <= 0 {
		maxMinutes = defaultMaxMinutes
	}
	cursor := dt.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < maxMinutes; i++ {
		if s.Matches(cursor) {
			return cursor, true
		}
		cursor = cursor.Add(time.Minute)
	}
	return time.Time{}, false
}

// PreviousAtOrBefore scans backward minute-by-minute for the most recent
// match at or before dt.
func (s Schedule) PreviousAtOrBefore(dt time.Time, maxMinutes int) (time.Time, bool) {
	if maxMinutes <= 0 {
		maxMinutes = defaultMaxMinutes
	}
	cursor := dt.Truncate(time.Minute)
	for i := 0; i < maxMinutes; i++ {
		if s.Matches(cursor) {
			return cursor, true
		}
		cursor = cursor.Add(-time.Minute)
	}
	return time.Time{}, false
}

// sortedValues is a small debugging helper that returns a field's expanded
// value set in ascending order; nothing in the package calls it.
func sortedValues(f Field) []int {
	out := make([]int, 0, len(f.values))
	for v := range f.values {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
