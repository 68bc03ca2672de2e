package study

import (
	"context"

	"github.com/google/uuid"

	"github.com/radpipe/radpipe/internal/domain/timewindow"
)

// DateField selects which study instant a date window applies to.
type DateField string

const (
	DateFieldStudyDate  DateField = "studyDate"
	DateFieldIngestedAt DateField = "ingestedAt"
	DateFieldAssignedAt DateField = "assignedAt"
)

// Filter is the repository-level predicate. Statuses is the already-expanded
// status restriction; the query engine owns category expansion so the
// category table has exactly one consumer path.
type Filter struct {
	OwnerDoctor *uuid.UUID
	OwnerLab    string
	Statuses    []WorkflowStatus
	DateField   DateField
	Window      timewindow.Interval
	FreeText    string
	Modality    string
	Priority    Priority
	Patient     string
}

// WithoutStatuses returns a copy of the filter with the status restriction
// removed, used to compute category counts across every bucket.
func (f Filter) WithoutStatuses() Filter {
	f.Statuses = nil
	return f
}

// StudyRepository is the record store the workflow core runs against. It has
// document semantics: a study row carries its assignment and status history.
//
// UpdateVersioned is the concurrency primitive: it applies the record only if
// the stored version still matches the record's version, incrementing it on
// success and returning ErrVersionConflict otherwise. All mutation paths go
// through it so concurrent actors cannot lose updates.
type StudyRepository interface {
	Create(ctx context.Context, s *StudyRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*StudyRecord, error)
	UpdateVersioned(ctx context.Context, s *StudyRecord) error
	// FindPage returns the sorted page matching the filter plus the total
	// match count. Sort order: assignment recency descending, ingestion time
	// descending as the stable tie-break.
	FindPage(ctx context.Context, f Filter, limit, offset int) ([]*StudyRecord, int, error)
	// CountByStatus groups matches of the filter (ignoring f.Statuses) by
	// workflow status.
	CountByStatus(ctx context.Context, f Filter) (map[WorkflowStatus]int, error)
}
