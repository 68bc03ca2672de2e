// Package tat computes multi-stage turnaround-time deltas for studies moving
// through the reporting pipeline. Every delta degrades gracefully: a missing
// endpoint yields a nil field, never an error or a negative value.
package tat

import (
	"fmt"
	"time"
)

// Phase describes where a study sits in the pipeline, derived purely from
// which timestamps are populated.
type Phase string

const (
	PhaseAwaitingAssignment  Phase = "awaiting_assignment"
	PhaseAwaitingReport      Phase = "awaiting_report"
	PhaseReportingInProgress Phase = "reporting_in_progress"
	PhaseFinalized           Phase = "finalized"
)

// SLAConfig holds the overdue thresholds by priority class.
type SLAConfig struct {
	Critical time.Duration // URGENT / STAT / EMERGENCY
	Routine  time.Duration // everything else
}

// DefaultSLA is the operational default: 24h for critical priorities,
// 72h otherwise.
func DefaultSLA() SLAConfig {
	return SLAConfig{Critical: 24 * time.Hour, Routine: 72 * time.Hour}
}

func (c SLAConfig) threshold(critical bool) time.Duration {
	if critical {
		return c.Critical
	}
	return c.Routine
}

// Input carries the pipeline milestone timestamps. Any of them may be nil.
// Critical selects the tighter SLA window; callers derive it from the study's
// priority class.
type Input struct {
	StudyDate    *time.Time
	UploadDate   *time.Time
	AssignedDate *time.Time
	ReportStart  *time.Time
	Finalized    *time.Time
	Critical     bool
}

// TAT holds the computed deltas. Minute fields are nil when either endpoint
// of the corresponding stage is absent.
type TAT struct {
	StudyToUpload      *int  `json:"study_to_upload_minutes,omitempty"`
	UploadToAssignment *int  `json:"upload_to_assignment_minutes,omitempty"`
	AssignmentToReport *int  `json:"assignment_to_report_minutes,omitempty"`
	StudyToReport      *int  `json:"study_to_report_minutes,omitempty"`
	UploadToReport     *int  `json:"upload_to_report_minutes,omitempty"`
	TotalDays          *int  `json:"total_days,omitempty"`
	IsOverdue          bool  `json:"is_overdue"`
	Phase              Phase `json:"phase"`
}

// Calculator computes TATs under a fixed SLA configuration.
type Calculator struct {
	sla SLAConfig
}

// NewCalculator returns a Calculator. A zero SLAConfig falls back to the
// operational defaults.
func NewCalculator(sla SLAConfig) *Calculator {
	if sla.Critical <= 0 {
		sla.Critical = DefaultSLA().Critical
	}
	if sla.Routine <= 0 {
		sla.Routine = DefaultSLA().Routine
	}
	return &Calculator{sla: sla}
}

// Compute derives all stage deltas from the supplied timestamps at the given
// reference instant. It never panics and never returns negative deltas.
func (c *Calculator) Compute(in Input, now time.Time) TAT {
	out := TAT{
		StudyToUpload:      MinutesBetween(in.StudyDate, in.UploadDate),
		UploadToAssignment: MinutesBetween(in.UploadDate, in.AssignedDate),
		AssignmentToReport: MinutesBetween(in.AssignedDate, in.Finalized),
		StudyToReport:      MinutesBetween(in.StudyDate, in.Finalized),
		UploadToReport:     MinutesBetween(in.UploadDate, in.Finalized),
		Phase:              phaseOf(in),
	}

	start := coalesce(in.StudyDate, in.UploadDate)
	if start != nil {
		end := now
		if in.Finalized != nil {
			end = *in.Finalized
		}
		d := daysBetween(*start, end)
		out.TotalDays = &d
	}

	out.IsOverdue = c.overdue(in, now)
	return out
}

// MinutesBetween returns the rounded whole minutes from a to b, clamped to
// zero. Clock anomalies that order b before a yield 0, not a negative delta.
// Nil on either side yields nil.
func MinutesBetween(a, b *time.Time) *int {
	if a == nil || b == nil {
		return nil
	}
	m := int(b.Sub(*a).Round(time.Minute) / time.Minute)
	if m < 0 {
		m = 0
	}
	return &m
}

func daysBetween(a, b time.Time) int {
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		d = 0
	}
	return d
}

// overdue reports whether an unfinalized study has exceeded its SLA window,
// measured since assignment, or since upload when unassigned.
func (c *Calculator) overdue(in Input, now time.Time) bool {
	if in.Finalized != nil {
		return false
	}
	anchor := coalesce(in.AssignedDate, in.UploadDate)
	if anchor == nil {
		return false
	}
	return now.Sub(*anchor) > c.sla.threshold(in.Critical)
}

func phaseOf(in Input) Phase {
	switch {
	case in.Finalized != nil:
		return PhaseFinalized
	case in.ReportStart != nil:
		return PhaseReportingInProgress
	case in.AssignedDate != nil:
		return PhaseAwaitingReport
	default:
		return PhaseAwaitingAssignment
	}
}

// Format renders a minute count for dashboards: "N minutes" under an hour,
// "Hh Mm" under a day (minutes omitted when zero), "Dd Hh" otherwise (hours
// omitted when zero).
func Format(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	if minutes < 24*60 {
		h, m := minutes/60, minutes%60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
	d, h := minutes/(24*60), (minutes%(24*60))/60
	if h == 0 {
		return fmt.Sprintf("%dd", d)
	}
	return fmt.Sprintf("%dd %dh", d, h)
}

func coalesce(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}
