// Package timewindow resolves named and custom date-range presets into exact
// instant intervals. Callers pass the reference instant and timezone
// explicitly; there is no ambient clock, so resolution is deterministic.
package timewindow

import (
	"errors"
	"time"
)

// ErrNoFilter is returned for an unrecognized preset. Callers treat it as
// "no date restriction": log and query unfiltered rather than fail.
var ErrNoFilter = errors.New("unrecognized date preset")

// Preset names a reusable date-range specification.
type Preset string

const (
	PresetLast24h   Preset = "last24h"
	PresetToday     Preset = "today"
	PresetYesterday Preset = "yesterday"
	PresetThisWeek  Preset = "thisWeek"
	PresetThisMonth Preset = "thisMonth"
	PresetThisYear  Preset = "thisYear"
	PresetCustom    Preset = "custom"
	// PresetAssignedToday windows exactly like today; callers special-case it
	// to filter on the assignment timestamp instead of the study date.
	PresetAssignedToday Preset = "assignedToday"
)

// DefaultZone is the operational deployment timezone, a fixed +05:30 offset.
func DefaultZone() *time.Location {
	return time.FixedZone("UTC+05:30", 5*3600+30*60)
}

// Interval is a time window. Named presets produce half-open [Start, End)
// windows; custom windows carry an inclusive End pointing at the last
// millisecond of the final day, flagged by IncludeEnd. A nil bound means
// unbounded on that side.
type Interval struct {
	Start      *time.Time
	End        *time.Time
	IncludeEnd bool
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	if iv.Start != nil && t.Before(*iv.Start) {
		return false
	}
	if iv.End != nil {
		if iv.IncludeEnd {
			if t.After(*iv.End) {
				return false
			}
		} else if !t.Before(*iv.End) {
			return false
		}
	}
	return true
}

// Resolve turns a preset into an instant interval against the given
// reference instant and timezone.
//
// The "this*" presets end at now, not at the calendar period end: the default
// dashboard view is "since period start", and that elapsed-so-far upper bound
// is intentional operational behavior.
func Resolve(preset Preset, now time.Time, loc *time.Location, customFrom, customTo string) (Interval, error) {
	if loc == nil {
		loc = DefaultZone()
	}
	local := now.In(loc)

	switch preset {
	case PresetLast24h:
		// Pure duration, timezone-independent.
		start := now.Add(-24 * time.Hour)
		return Interval{Start: &start, End: &now}, nil

	case PresetToday, PresetAssignedToday:
		start := midnight(local)
		return Interval{Start: &start, End: &now}, nil

	case PresetYesterday:
		end := midnight(local)
		start := end.AddDate(0, 0, -1)
		return Interval{Start: &start, End: &end}, nil

	case PresetThisWeek:
		// Weeks start on the most recent Sunday midnight.
		start := midnight(local).AddDate(0, 0, -int(local.Weekday()))
		return Interval{Start: &start, End: &now}, nil

	case PresetThisMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return Interval{Start: &start, End: &now}, nil

	case PresetThisYear:
		start := time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return Interval{Start: &start, End: &now}, nil

	case PresetCustom:
		return resolveCustom(customFrom, customTo, loc)
	}

	return Interval{}, ErrNoFilter
}

// resolveCustom builds an inclusive [from 00:00:00, to 23:59:59.999] window.
// Either bound may be empty, leaving that side unbounded.
func resolveCustom(customFrom, customTo string, loc *time.Location) (Interval, error) {
	iv := Interval{IncludeEnd: true}
	if customFrom != "" {
		d, err := time.ParseInLocation("2006-01-02", customFrom, loc)
		if err != nil {
			return Interval{}, ErrNoFilter
		}
		iv.Start = &d
	}
	if customTo != "" {
		d, err := time.ParseInLocation("2006-01-02", customTo, loc)
		if err != nil {
			return Interval{}, ErrNoFilter
		}
		end := d.AddDate(0, 0, 1).Add(-time.Millisecond)
		iv.End = &end
	}
	return iv, nil
}

func midnight(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}
