package study

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radpipe/radpipe/internal/platform/imaging"
)

// IngestRequest carries what intake staff know about an incoming study.
// Modalities and study date/time are filled from the imaging source when it
// recognizes the external identifier.
type IngestRequest struct {
	PatientRef      string
	SourceLabRef    string
	ExternalStudyID string
	AccessionNumber string
	Priority        Priority
	CaseType        string
}

// Ingestor creates study records in the initial new_study_received state.
type Ingestor struct {
	studies StudyRepository
	source  imaging.ImagingSource
	now     func() time.Time
}

// NewIngestor creates an Ingestor. source may be nil when no imaging server
// is wired (records are created from the request alone).
func NewIngestor(studies StudyRepository, source imaging.ImagingSource) *Ingestor {
	return &Ingestor{studies: studies, source: source, now: time.Now}
}

// SetClock overrides the ingestor's clock. Tests only.
func (i *Ingestor) SetClock(now func() time.Time) { i.now = now }

// Ingest creates the record once; every later mutation flows through the
// assignment engine or report lifecycle.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest, actor uuid.UUID) (*StudyRecord, error) {
	if req.ExternalStudyID == "" {
		return nil, ErrMissingExternalID
	}
	if !req.Priority.IsValid() {
		req.Priority = PriorityNormal
	}

	now := i.now().UTC()
	s := &StudyRecord{
		PatientRef:      req.PatientRef,
		SourceLabRef:    req.SourceLabRef,
		ExternalStudyID: req.ExternalStudyID,
		AccessionNumber: req.AccessionNumber,
		IngestedAt:      now,
		WorkflowStatus:  StatusNewStudyReceived,
		Priority:        req.Priority,
		CaseType:        req.CaseType,
	}

	if i.source != nil {
		if desc, err := i.source.DescribeStudy(ctx, req.ExternalStudyID); err == nil {
			s.Modalities = append([]string(nil), desc.Modalities...)
			s.StudyDate = desc.StudyDate
			s.StudyTime = desc.StudyTime
		}
	}

	s.StatusHistory = []StatusHistoryEntry{{
		Status:    StatusNewStudyReceived,
		ChangedAt: now,
		ChangedBy: actor,
		Note:      "study ingested",
	}}

	if err := i.studies.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create study: %w", err)
	}
	return s, nil
}
