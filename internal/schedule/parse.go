package schedule

import (
	"encoding/json"
	"fmt"
	"sort"

	"bookcore/internal/validation"
)

// Field is the attribute calendar validation errors are attached to.
const Field = "availability"

// Parse validates a decoded calendar document (the result of json.Unmarshal into
// any) and builds a Calendar. Every problem is collected; the returned calendar is
// only meaningful when errs is empty. A non-map document normalizes to an empty
// calendar without errors.
func Parse(doc any) (*Calendar, *validation.Errors) {
	errs := validation.New()
	cal := NewCalendar()

	root, ok := doc.(map[string]any)
	if !ok {
		return cal, errs
	}

	for _, key := range sortedKeys(root) {
		value := root[key]
		if key == ExceptionsKey {
			parseExceptions(cal, value, errs)
			continue
		}
		wd, ok := WeekdayNames[key]
		if !ok {
			errs.Addf(Field, "contains invalid key %q", key)
			continue
		}
		cal.Weekly[wd] = parseIntervals(key, value, errs)
	}

	return cal, errs
}

// ParseJSON is Parse over raw JSON. Syntactically broken JSON is an error.
func ParseJSON(data []byte) (*Calendar, *validation.Errors) {
	if len(data) == 0 {
		return NewCalendar(), validation.New()
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		errs := validation.New()
		errs.Add(Field, "must be valid JSON")
		return NewCalendar(), errs
	}
	return Parse(doc)
}

// Decode builds a Calendar for availability queries. It never fails: unknown
// keys and intervals that do not parse are dropped, so a damaged entry makes the
// resource closed rather than open.
func Decode(doc any) *Calendar {
	cal := NewCalendar()
	root, ok := doc.(map[string]any)
	if !ok {
		return cal
	}
	for key, value := range root {
		if key == ExceptionsKey {
			byDate, ok := value.(map[string]any)
			if !ok {
				continue
			}
			for ds, list := range byDate {
				d, err := ParseDate(ds)
				if err != nil {
					continue
				}
				cal.Exceptions[d] = decodeIntervals(list)
			}
			continue
		}
		if wd, ok := WeekdayNames[key]; ok {
			cal.Weekly[wd] = decodeIntervals(value)
		}
	}
	return cal
}

// DecodeJSON is Decode over raw JSON; broken JSON yields an empty calendar.
func DecodeJSON(data []byte) *Calendar {
	if len(data) == 0 {
		return NewCalendar()
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return NewCalendar()
	}
	return Decode(doc)
}

func parseExceptions(cal *Calendar, value any, errs *validation.Errors) {
	byDate, ok := value.(map[string]any)
	if !ok {
		errs.Add(Field, "exceptions must be a map of dates to interval lists")
		return
	}
	for _, ds := range sortedKeys(byDate) {
		d, err := ParseDate(ds)
		if err != nil {
			errs.Addf(Field, "exceptions key %q is not a valid date (YYYY-MM-DD)", ds)
			continue
		}
		cal.Exceptions[d] = parseIntervals(fmt.Sprintf("exceptions[%s]", ds), byDate[ds], errs)
	}
}

func parseIntervals(label string, value any, errs *validation.Errors) []Interval {
	if value == nil {
		return []Interval{}
	}
	list, ok := value.([]any)
	if !ok {
		errs.Addf(Field, "%s must be a list of intervals", label)
		return nil
	}

	out := make([]Interval, 0, len(list))
	for i, item := range list {
		pos := fmt.Sprintf("%s[%d]", label, i)
		obj, ok := item.(map[string]any)
		if !ok {
			errs.Addf(Field, "%s must be an object with start and end", pos)
			continue
		}

		valid := true
		for _, k := range sortedKeys(obj) {
			if k != "start" && k != "end" {
				errs.Addf(Field, "%s contains invalid key %q", pos, k)
				valid = false
			}
		}

		start, okStart := parseBound(pos, "start", obj["start"], errs)
		end, okEnd := parseBound(pos, "end", obj["end"], errs)
		if !okStart || !okEnd || !valid {
			continue
		}
		if start >= end {
			errs.Addf(Field, "%s start time must be before end time", pos)
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

func parseBound(pos, key string, value any, errs *validation.Errors) (TimeOfDay, bool) {
	s, ok := value.(string)
	if !ok {
		errs.Addf(Field, "%s.%s is required and must be a HH:MM string", pos, key)
		return 0, false
	}
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		errs.Addf(Field, "%s.%s %q is not a valid HH:MM time", pos, key, s)
		return 0, false
	}
	return tod, true
}

func decodeIntervals(value any) []Interval {
	list, ok := value.([]any)
	if !ok {
		return []Interval{}
	}
	out := make([]Interval, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		start, okStart := obj["start"].(string)
		end, okEnd := obj["end"].(string)
		if !okStart || !okEnd {
			continue
		}
		iv, err := NewInterval(start, end)
		if err != nil {
			continue
		}
		out = append(out, iv)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
