// Package recurrence expands class series rules into individual session slots.
package recurrence

import (
	"errors"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily generates occurrences for each day within the range.
	FrequencyDaily
	// FrequencyWeekly generates occurrences for the selected weekdays.
	FrequencyWeekly
)

// ParseFrequency maps "daily" and "weekly" to their Frequency values.
func ParseFrequency(value string) (Frequency, bool) {
	switch value {
	case "daily":
		return FrequencyDaily, true
	case "weekly":
		return FrequencyWeekly, true
	default:
		return FrequencyUnspecified, false
	}
}

// Rule describes a recurring class slot.
type Rule struct {
	Frequency Frequency
	Weekdays  []time.Weekday
	StartsOn  time.Time
	EndsOn    *time.Time
}

// GenerateOptions narrows occurrence generation.
type GenerateOptions struct {
	// RangeStart drops occurrences on calendar days before it.
	RangeStart *time.Time
}

// MaxOccurrences bounds a single expansion to roughly a year of daily classes.
const MaxOccurrences = 366

// Occurrence represents a generated instance of a recurrence rule.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Engine expands recurrence rules into occurrences.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that normalizes results to the provided location.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates the rule has no end date.
var ErrInvalidWindow = errors.New("recurrence: rule requires an end date")

// ErrInvalidDuration indicates the class duration is invalid.
var ErrInvalidDuration = errors.New("recurrence: class duration must be positive")

// ErrTooManyOccurrences indicates the rule expands past MaxOccurrences.
var ErrTooManyOccurrences = errors.New("recurrence: rule produces too many occurrences")

// GenerateOccurrences produces class slots within the configured window.
//
//   - Timestamps are normalized to the engine's location; the wall-clock time of
//     baseStart is kept across daylight saving changes.
//   - The window runs from the later of StartsOn and RangeStart to EndsOn,
//     inclusive by calendar date.
//   - Weekly rules require weekdays; daily rules filter by weekdays when given.
func (e *Engine) GenerateOccurrences(rule Rule, baseStart, baseEnd time.Time, opts GenerateOptions) ([]Occurrence, error) {
	loc := e.location
	if loc == nil {
		loc = time.UTC
	}

	baseStart = baseStart.In(loc)
	baseEnd = baseEnd.In(loc)
	if !baseEnd.After(baseStart) {
		return nil, ErrInvalidDuration
	}
	duration := baseEnd.Sub(baseStart)

	lower := startOfDay(rule.StartsOn, loc)
	if opts.RangeStart != nil {
		if rs := startOfDay(*opts.RangeStart, loc); rs.After(lower) {
			lower = rs
		}
	}

	if rule.EndsOn == nil {
		return nil, ErrInvalidWindow
	}
	upper := startOfDay(*rule.EndsOn, loc)
	if lower.After(upper) {
		return nil, nil
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	occurrences := make([]Occurrence, 0)
	for day := lower; !day.After(upper); day = day.AddDate(0, 0, 1) {
		include, err := shouldInclude(rule.Frequency, weekdaySet, day.Weekday())
		if err != nil {
			return nil, err
		}
		if !include {
			continue
		}
		if len(occurrences) == MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}

		start := combineDateTime(day, baseStart, loc)
		occurrences = append(occurrences, Occurrence{Start: start, End: start.Add(duration)})
	}

	return occurrences, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func combineDateTime(dateSource, template time.Time, loc *time.Location) time.Time {
	y, m, d := dateSource.In(loc).Date()
	clock := template.In(loc)
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
}

func shouldInclude(freq Frequency, weekdaySet map[time.Weekday]struct{}, day time.Weekday) (bool, error) {
	switch freq {
	case FrequencyDaily:
		if len(weekdaySet) == 0 {
			return true, nil
		}
		_, ok := weekdaySet[day]
		return ok, nil
	case FrequencyWeekly:
		if len(weekdaySet) == 0 {
			return false, nil
		}
		_, ok := weekdaySet[day]
		return ok, nil
	default:
		return false, ErrInvalidFrequency
	}
}
