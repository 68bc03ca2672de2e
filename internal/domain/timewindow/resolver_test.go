package timewindow

import (
	"errors"
	"testing"
	"time"
)

// A Wednesday afternoon in the default zone.
var refNow = time.Date(2025, time.March, 12, 15, 30, 45, 0, DefaultZone())

func TestDefaultZone(t *testing.T) {
	_, offset := refNow.Zone()
	if offset != 5*3600+30*60 {
		t.Errorf("offset = %d seconds, want +05:30", offset)
	}
}

func TestResolve_Today(t *testing.T) {
	iv, err := Resolve(PresetToday, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantStart := time.Date(2025, time.March, 12, 0, 0, 0, 0, DefaultZone())
	if !iv.Start.Equal(wantStart) {
		t.Errorf("start = %v, want local midnight", iv.Start)
	}
	if !iv.End.Equal(refNow) {
		t.Errorf("end = %v, want now", iv.End)
	}
	if iv.IncludeEnd {
		t.Error("named presets are half-open")
	}
	if iv.Contains(wantStart.Add(-time.Second)) {
		t.Error("instant before midnight must be outside")
	}
	if !iv.Contains(wantStart) {
		t.Error("midnight itself is inside")
	}
	if iv.Contains(refNow) {
		t.Error("half-open window excludes its end instant")
	}
}

func TestResolve_Yesterday(t *testing.T) {
	iv, err := Resolve(PresetYesterday, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantStart := time.Date(2025, time.March, 11, 0, 0, 0, 0, DefaultZone())
	wantEnd := time.Date(2025, time.March, 12, 0, 0, 0, 0, DefaultZone())
	if !iv.Start.Equal(wantStart) || !iv.End.Equal(wantEnd) {
		t.Errorf("window = [%v, %v)", iv.Start, iv.End)
	}
	if !iv.Contains(wantEnd.Add(-time.Millisecond)) {
		t.Error("last instant of yesterday is inside")
	}
	if iv.Contains(wantEnd) {
		t.Error("today's midnight is outside yesterday")
	}
}

func TestResolve_Last24h(t *testing.T) {
	iv, err := Resolve(PresetLast24h, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := iv.End.Sub(*iv.Start); got != 24*time.Hour {
		t.Errorf("span = %v", got)
	}
}

func TestResolve_ThisWeekStartsSunday(t *testing.T) {
	iv, err := Resolve(PresetThisWeek, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// March 12 2025 is a Wednesday; the week began Sunday March 9.
	wantStart := time.Date(2025, time.March, 9, 0, 0, 0, 0, DefaultZone())
	if !iv.Start.Equal(wantStart) {
		t.Errorf("start = %v, want Sunday midnight", iv.Start)
	}
	if !iv.End.Equal(refNow) {
		t.Errorf("end = %v, want now", iv.End)
	}
}

func TestResolve_ThisWeekOnSunday(t *testing.T) {
	sunday := time.Date(2025, time.March, 9, 8, 0, 0, 0, DefaultZone())
	iv, err := Resolve(PresetThisWeek, sunday, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantStart := time.Date(2025, time.March, 9, 0, 0, 0, 0, DefaultZone())
	if !iv.Start.Equal(wantStart) {
		t.Errorf("on a Sunday the week starts that same midnight, got %v", iv.Start)
	}
}

func TestResolve_ThisMonthAndYear(t *testing.T) {
	iv, err := Resolve(PresetThisMonth, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !iv.Start.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, DefaultZone())) {
		t.Errorf("month start = %v", iv.Start)
	}

	iv, err = Resolve(PresetThisYear, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !iv.Start.Equal(time.Date(2025, time.January, 1, 0, 0, 0, 0, DefaultZone())) {
		t.Errorf("year start = %v", iv.Start)
	}
	if !iv.End.Equal(refNow) {
		t.Errorf("this* presets end at now, got %v", iv.End)
	}
}

func TestResolve_AssignedTodayWindowsLikeToday(t *testing.T) {
	a, err := Resolve(PresetAssignedToday, refNow, DefaultZone(), "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, _ := Resolve(PresetToday, refNow, DefaultZone(), "", "")
	if !a.Start.Equal(*b.Start) || !a.End.Equal(*b.End) {
		t.Error("assignedToday must window identically to today")
	}
}

func TestResolve_CustomInclusiveEnd(t *testing.T) {
	iv, err := Resolve(PresetCustom, refNow, DefaultZone(), "2025-03-01", "2025-03-10")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !iv.IncludeEnd {
		t.Fatal("custom windows carry an inclusive end")
	}
	wantEnd := time.Date(2025, time.March, 10, 23, 59, 59, 999_000_000, DefaultZone())
	if !iv.End.Equal(wantEnd) {
		t.Errorf("end = %v, want last millisecond of the final day", iv.End)
	}
	if !iv.Contains(wantEnd) {
		t.Error("inclusive end instant is inside")
	}
	if iv.Contains(wantEnd.Add(time.Millisecond)) {
		t.Error("next midnight is outside")
	}
	if iv.Contains(time.Date(2025, time.February, 28, 12, 0, 0, 0, DefaultZone())) {
		t.Error("day before the start is outside")
	}
}

func TestResolve_CustomOpenEnded(t *testing.T) {
	iv, err := Resolve(PresetCustom, refNow, DefaultZone(), "2025-03-01", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if iv.End != nil {
		t.Error("empty to-date leaves the end unbounded")
	}
	if !iv.Contains(time.Date(2030, time.June, 1, 0, 0, 0, 0, DefaultZone())) {
		t.Error("far future instant must be inside an end-unbounded window")
	}

	iv, err = Resolve(PresetCustom, refNow, DefaultZone(), "", "2025-03-10")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if iv.Start != nil {
		t.Error("empty from-date leaves the start unbounded")
	}
}

func TestResolve_CustomBadDate(t *testing.T) {
	for _, bad := range []string{"03/01/2025", "2025-13-40", "notadate"} {
		if _, err := Resolve(PresetCustom, refNow, DefaultZone(), bad, ""); !errors.Is(err, ErrNoFilter) {
			t.Errorf("from=%q: expected ErrNoFilter, got %v", bad, err)
		}
		if _, err := Resolve(PresetCustom, refNow, DefaultZone(), "", bad); !errors.Is(err, ErrNoFilter) {
			t.Errorf("to=%q: expected ErrNoFilter, got %v", bad, err)
		}
	}
}

func TestResolve_UnknownPreset(t *testing.T) {
	if _, err := Resolve("fortnight", refNow, DefaultZone(), "", ""); !errors.Is(err, ErrNoFilter) {
		t.Errorf("expected ErrNoFilter, got %v", err)
	}
}

func TestResolve_NilZoneDefaults(t *testing.T) {
	utcNoon := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)
	iv, err := Resolve(PresetToday, utcNoon, nil, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// 00:00 UTC is 05:30 local, so today began 5h30m earlier.
	wantStart := utcNoon.Add(-(5*time.Hour + 30*time.Minute))
	if !iv.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", iv.Start, wantStart)
	}
}
