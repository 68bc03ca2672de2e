package tat

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

var t0 = time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)

func TestMinutesBetween(t *testing.T) {
	if got := MinutesBetween(nil, tp(t0)); got != nil {
		t.Errorf("nil a: got %v", *got)
	}
	if got := MinutesBetween(tp(t0), nil); got != nil {
		t.Errorf("nil b: got %v", *got)
	}
	if got := MinutesBetween(tp(t0), tp(t0.Add(45*time.Minute))); got == nil || *got != 45 {
		t.Errorf("45m delta: got %v", got)
	}
	// Rounding, not truncation.
	if got := MinutesBetween(tp(t0), tp(t0.Add(90*time.Second))); got == nil || *got != 2 {
		t.Errorf("90s rounds to 2, got %v", got)
	}
	// Backwards clocks clamp to zero.
	if got := MinutesBetween(tp(t0), tp(t0.Add(-time.Hour))); got == nil || *got != 0 {
		t.Errorf("negative delta must clamp to 0, got %v", got)
	}
}

func TestCompute_StageDeltas(t *testing.T) {
	c := NewCalculator(SLAConfig{})
	in := Input{
		StudyDate:    tp(t0),
		UploadDate:   tp(t0.Add(30 * time.Minute)),
		AssignedDate: tp(t0.Add(90 * time.Minute)),
		ReportStart:  tp(t0.Add(2 * time.Hour)),
		Finalized:    tp(t0.Add(4 * time.Hour)),
	}
	out := c.Compute(in, t0.Add(24*time.Hour))

	checks := []struct {
		name string
		got  *int
		want int
	}{
		{"StudyToUpload", out.StudyToUpload, 30},
		{"UploadToAssignment", out.UploadToAssignment, 60},
		{"AssignmentToReport", out.AssignmentToReport, 150},
		{"StudyToReport", out.StudyToReport, 240},
		{"UploadToReport", out.UploadToReport, 210},
	}
	for _, ck := range checks {
		if ck.got == nil || *ck.got != ck.want {
			t.Errorf("%s = %v, want %d", ck.name, ck.got, ck.want)
		}
	}
	if out.Phase != PhaseFinalized {
		t.Errorf("phase = %s", out.Phase)
	}
	if out.IsOverdue {
		t.Error("finalized studies are never overdue")
	}
}

func TestCompute_MissingEndpointsYieldNil(t *testing.T) {
	c := NewCalculator(SLAConfig{})
	out := c.Compute(Input{UploadDate: tp(t0)}, t0.Add(time.Hour))
	if out.StudyToUpload != nil || out.UploadToAssignment != nil || out.AssignmentToReport != nil {
		t.Error("deltas with a missing endpoint must be nil")
	}
	if out.Phase != PhaseAwaitingAssignment {
		t.Errorf("phase = %s", out.Phase)
	}
}

func TestCompute_TotalDays(t *testing.T) {
	c := NewCalculator(SLAConfig{})

	// Unfinalized: elapsed from study date to now.
	out := c.Compute(Input{StudyDate: tp(t0)}, t0.Add(50*time.Hour))
	if out.TotalDays == nil || *out.TotalDays != 2 {
		t.Errorf("TotalDays = %v, want 2", out.TotalDays)
	}

	// Finalized: the clock stops at finalization.
	out = c.Compute(Input{
		StudyDate: tp(t0),
		Finalized: tp(t0.Add(26 * time.Hour)),
	}, t0.Add(200*time.Hour))
	if out.TotalDays == nil || *out.TotalDays != 1 {
		t.Errorf("finalized TotalDays = %v, want 1", out.TotalDays)
	}

	// No start anchor at all.
	out = c.Compute(Input{}, t0)
	if out.TotalDays != nil {
		t.Errorf("TotalDays without anchor = %v, want nil", out.TotalDays)
	}

	// Upload date anchors when the study date is absent.
	out = c.Compute(Input{UploadDate: tp(t0)}, t0.Add(25*time.Hour))
	if out.TotalDays == nil || *out.TotalDays != 1 {
		t.Errorf("upload-anchored TotalDays = %v, want 1", out.TotalDays)
	}
}

func TestPhaseDerivation(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Phase
	}{
		{"empty", Input{}, PhaseAwaitingAssignment},
		{"uploaded only", Input{UploadDate: tp(t0)}, PhaseAwaitingAssignment},
		{"assigned", Input{AssignedDate: tp(t0)}, PhaseAwaitingReport},
		{"report started", Input{AssignedDate: tp(t0), ReportStart: tp(t0)}, PhaseReportingInProgress},
		{"finalized", Input{AssignedDate: tp(t0), ReportStart: tp(t0), Finalized: tp(t0)}, PhaseFinalized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := phaseOf(tc.in); got != tc.want {
				t.Errorf("phase = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOverdue(t *testing.T) {
	c := NewCalculator(SLAConfig{Critical: 24 * time.Hour, Routine: 72 * time.Hour})

	routine := Input{AssignedDate: tp(t0)}
	if c.Compute(routine, t0.Add(71*time.Hour)).IsOverdue {
		t.Error("routine study inside 72h window flagged overdue")
	}
	if !c.Compute(routine, t0.Add(73*time.Hour)).IsOverdue {
		t.Error("routine study past 72h not flagged")
	}

	critical := Input{AssignedDate: tp(t0), Critical: true}
	if !c.Compute(critical, t0.Add(25*time.Hour)).IsOverdue {
		t.Error("critical study past 24h not flagged")
	}
	if c.Compute(critical, t0.Add(23*time.Hour)).IsOverdue {
		t.Error("critical study inside 24h window flagged")
	}

	// Unassigned studies anchor on the upload time instead.
	uploaded := Input{UploadDate: tp(t0), Critical: true}
	if !c.Compute(uploaded, t0.Add(25*time.Hour)).IsOverdue {
		t.Error("unassigned study anchors overdue on upload time")
	}

	// No anchor at all: never overdue.
	if c.Compute(Input{Critical: true}, t0.Add(1000*time.Hour)).IsOverdue {
		t.Error("study with no timestamps cannot be overdue")
	}

	// Finalization clears overdue regardless of elapsed time.
	done := Input{AssignedDate: tp(t0), Finalized: tp(t0.Add(100 * time.Hour))}
	if c.Compute(done, t0.Add(200*time.Hour)).IsOverdue {
		t.Error("finalized study flagged overdue")
	}
}

func TestNewCalculator_ZeroConfigDefaults(t *testing.T) {
	c := NewCalculator(SLAConfig{})
	if c.sla.Critical != 24*time.Hour || c.sla.Routine != 72*time.Hour {
		t.Errorf("sla = %+v, want operational defaults", c.sla)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{0, "0 minutes"},
		{45, "45 minutes"},
		{59, "59 minutes"},
		{60, "1h"},
		{125, "2h 5m"},
		{24 * 60, "1d"},
		{3*24*60 + 4*60, "3d 4h"},
		{2*24*60 + 30, "2d"},
		{-10, "0 minutes"},
	}
	for _, tc := range cases {
		if got := Format(tc.minutes); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}

func TestCompute_CriticalFlagSelectsThreshold(t *testing.T) {
	c := NewCalculator(SLAConfig{Critical: time.Hour, Routine: 10 * time.Hour})
	in := Input{AssignedDate: tp(t0)}
	at := t0.Add(2 * time.Hour)

	if c.Compute(in, at).IsOverdue {
		t.Error("routine input judged against the critical window")
	}
	in.Critical = true
	if !c.Compute(in, at).IsOverdue {
		t.Error("critical input judged against the routine window")
	}
}
