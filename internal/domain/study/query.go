package study

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/radpipe/radpipe/internal/domain/tat"
	"github.com/radpipe/radpipe/internal/domain/timewindow"
)

const (
	// DefaultPageSize applies when the caller supplies no limit.
	DefaultPageSize = 50
	// MaxPageSize bounds caller-supplied limits. Values above it are clamped,
	// never rejected.
	MaxPageSize = 1000
)

// Query is the caller-facing filter for the worklist view. Category and
// Status are mutually exclusive; Status wins when both are set.
type Query struct {
	OwnerDoctor *uuid.UUID
	OwnerLab    string
	Category    Category
	Status      WorkflowStatus
	DateField   DateField
	DatePreset  timewindow.Preset
	CustomFrom  string
	CustomTo    string
	FreeText    string
	Modality    string
	Priority    Priority
	Patient     string
	Limit       int
	Offset      int
}

// CategoryCounts are the dashboard tab badges. They are computed from the
// query with the category/status restriction removed, so each badge reflects
// every other active filter dimension. All is the grand total across the
// four buckets.
type CategoryCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inprogress"`
	Completed  int `json:"completed"`
	Unknown    int `json:"unknown"`
	All        int `json:"all"`
}

// StudyView decorates a record with the ephemeral, non-persisted fields the
// dashboard renders: the derived category and turnaround times.
type StudyView struct {
	*StudyRecord
	DerivedCategory Category `json:"category"`
	TAT             tat.TAT  `json:"tat"`
}

// QueryResult is one page of the filtered worklist plus consistent counts.
type QueryResult struct {
	Items          []*StudyView   `json:"items"`
	Total          int            `json:"total"`
	CategoryCounts CategoryCounts `json:"category_counts"`
}

// QueryEngine answers filtered, paginated worklist queries with category
// counts that stay consistent with the same filter dimensions. It takes no
// locks; it tolerates the eventually-consistent view a concurrent mutation
// produces.
type QueryEngine struct {
	studies StudyRepository
	tats    *tat.Calculator
	zone    *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

// NewQueryEngine creates a QueryEngine. zone is the calendar timezone for
// date presets; nil falls back to the operational +05:30 default.
func NewQueryEngine(studies StudyRepository, tats *tat.Calculator, zone *time.Location, log zerolog.Logger) *QueryEngine {
	if zone == nil {
		zone = timewindow.DefaultZone()
	}
	return &QueryEngine{studies: studies, tats: tats, zone: zone, log: log, now: time.Now}
}

// SetClock overrides the engine's clock. Tests only.
func (e *QueryEngine) SetClock(now func() time.Time) { e.now = now }

// Run executes the query: the predicate without the category/status
// restriction produces the per-category counts, then the restriction plus
// sorting and paging produce the page itself.
func (e *QueryEngine) Run(ctx context.Context, q Query) (*QueryResult, error) {
	now := e.now()
	f, err := e.buildFilter(q, now)
	if err != nil {
		return nil, err
	}

	byStatus, err := e.studies.CountByStatus(ctx, f.WithoutStatuses())
	if err != nil {
		return nil, err
	}
	counts := rollupCounts(byStatus)

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	items, total, err := e.studies.FindPage(ctx, f, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]*StudyView, 0, len(items))
	for _, s := range items {
		views = append(views, &StudyView{
			StudyRecord:     s,
			DerivedCategory: s.Category(),
			TAT:             e.tats.Compute(tatInput(s), now),
		})
	}
	return &QueryResult{Items: views, Total: total, CategoryCounts: counts}, nil
}

// tatInput builds the calculator input from a record's milestone timestamps.
func tatInput(s *StudyRecord) tat.Input {
	ingested := s.IngestedAt
	return tat.Input{
		StudyDate:    s.StudyDate,
		UploadDate:   &ingested,
		AssignedDate: s.LastAssignedAt(),
		ReportStart:  s.ReportTimeline.StartedAt,
		Finalized:    s.ReportTimeline.FinalizedAt,
		Critical:     s.Priority.IsCritical(),
	}
}

// buildFilter translates the caller query into the repository predicate,
// resolving the date preset and expanding the category restriction through
// the canonical table.
func (e *QueryEngine) buildFilter(q Query, now time.Time) (Filter, error) {
	f := Filter{
		OwnerDoctor: q.OwnerDoctor,
		OwnerLab:    q.OwnerLab,
		DateField:   q.DateField,
		FreeText:    q.FreeText,
		Modality:    q.Modality,
		Priority:    q.Priority,
		Patient:     q.Patient,
	}

	if q.DatePreset != "" {
		window, err := timewindow.Resolve(q.DatePreset, now, e.zone, q.CustomFrom, q.CustomTo)
		switch {
		case errors.Is(err, timewindow.ErrNoFilter):
			// Degrade to unfiltered rather than fail the whole query.
			e.log.Warn().Str("preset", string(q.DatePreset)).Msg("unrecognized date preset, querying unfiltered")
		case err != nil:
			return Filter{}, err
		default:
			f.Window = window
			if q.DatePreset == timewindow.PresetAssignedToday {
				// assignedToday filters the assignment timestamp, not the
				// study date; the window itself is plain today.
				f.DateField = DateFieldAssignedAt
			}
		}
	}

	switch {
	case q.Status != "":
		if !q.Status.IsValid() {
			return Filter{}, ErrUnknownStatus
		}
		f.Statuses = []WorkflowStatus{q.Status}
	case q.Category != "":
		f.Statuses = ExpandCategory(q.Category)
	}
	return f, nil
}

func rollupCounts(byStatus map[WorkflowStatus]int) CategoryCounts {
	var c CategoryCounts
	for status, n := range byStatus {
		switch CategoryOf(status) {
		case CategoryPending:
			c.Pending += n
		case CategoryInProgress:
			c.InProgress += n
		case CategoryCompleted:
			c.Completed += n
		default:
			c.Unknown += n
		}
		c.All += n
	}
	return c
}
