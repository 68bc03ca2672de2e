package study

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radpipe/radpipe/internal/platform/blobstore"
)

// ReportLifecycle drives a study through report authoring: opening the
// report, finalizing it, attaching artifacts, and recording downloads.
//
// SubmitReport writes the report blob before the status transition and
// treats the status write as the sole source of truth: a timed-out blob
// write commits nothing, and a lost status race leaves only an unreferenced
// blob behind (deleted best-effort).
type ReportLifecycle struct {
	studies StudyRepository
	blobs   blobstore.BlobStore
	now     func() time.Time
}

// NewReportLifecycle creates a ReportLifecycle. The blob store should already
// be deadline-bounded; its timeouts surface as ErrStorageTimeout.
func NewReportLifecycle(studies StudyRepository, blobs blobstore.BlobStore) *ReportLifecycle {
	return &ReportLifecycle{studies: studies, blobs: blobs, now: time.Now}
}

// SetClock overrides the lifecycle's clock. Tests only.
func (l *ReportLifecycle) SetClock(now func() time.Time) { l.now = now }

// StartReport moves an assigned study to report_in_progress. The caller must
// be the current assignee (ErrNotAssigned) and the study must be in
// assigned_to_doctor or doctor_opened_report (ErrInvalidTransition).
// StartedAt is set once; repeated calls do not overwrite it.
func (l *ReportLifecycle) StartReport(ctx context.Context, studyID, doctorID, actor uuid.UUID) (*StudyRecord, error) {
	return l.mutate(ctx, studyID, func(s *StudyRecord) error {
		if err := requireAssignee(s, doctorID); err != nil {
			return err
		}
		if s.WorkflowStatus != StatusAssignedToDoctor && s.WorkflowStatus != StatusDoctorOpenedReport {
			return fmt.Errorf("start report in state %s: %w", s.WorkflowStatus, ErrInvalidTransition)
		}
		now := l.now().UTC()
		if s.ReportTimeline.StartedAt == nil {
			s.ReportTimeline.StartedAt = &now
		}
		s.setStatus(StatusReportInProgress, actor, now, "report started")
		return nil
	})
}

// SubmitReport finalizes the report: the content is stored first through the
// bounded blob store, then the study moves to report_finalized referencing
// the stored artifact. FinalizedAt is overwritten on every call; a report
// may be re-finalized.
func (l *ReportLifecycle) SubmitReport(ctx context.Context, studyID, doctorID uuid.UUID, content []byte, contentType string, actor uuid.UUID) (*StudyRecord, error) {
	// Validate the precondition before paying for blob I/O.
	s, err := l.studies.GetByID(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if err := requireAssignee(s, doctorID); err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = "application/pdf"
	}
	meta, err := l.blobs.Put(ctx, blobstore.BlobMetadata{
		FileName:    fmt.Sprintf("report-%s.pdf", studyID),
		ContentType: contentType,
		Kind:        "final-report",
		StudyID:     studyID.String(),
		CreatedBy:   doctorID.String(),
	}, content)
	if err != nil {
		return nil, mapBlobErr(err)
	}

	out, err := l.mutate(ctx, studyID, func(s *StudyRecord) error {
		if err := requireAssignee(s, doctorID); err != nil {
			return err
		}
		now := l.now().UTC()
		s.ReportTimeline.FinalizedAt = &now
		s.ReportArtifacts = append(s.ReportArtifacts, ArtifactRef{
			BlobID:      meta.ID,
			ContentType: meta.ContentType,
			Kind:        meta.Kind,
			AttachedAt:  now,
			AttachedBy:  actor,
		})
		s.setStatus(StatusReportFinalized, actor, now, "report finalized")
		return nil
	})
	if err != nil {
		// The status write is the source of truth; without it the stored
		// blob is unobservable. Reclaim it best-effort.
		_ = l.blobs.Delete(ctx, meta.ID)
		return nil, err
	}
	return out, nil
}

// AttachArtifact records an already-stored artifact on the study. The first
// clinical artifact attached while the report is in progress finalizes the
// report: an upload implies the report is done.
func (l *ReportLifecycle) AttachArtifact(ctx context.Context, studyID uuid.UUID, ref ArtifactRef, actor uuid.UUID) (*StudyRecord, error) {
	return l.mutate(ctx, studyID, func(s *StudyRecord) error {
		if s.WorkflowStatus.IsTerminal() {
			return fmt.Errorf("attach artifact to archived study: %w", ErrInvalidTransition)
		}
		now := l.now().UTC()
		if ref.AttachedAt.IsZero() {
			ref.AttachedAt = now
		}
		ref.AttachedBy = actor
		first := len(s.ReportArtifacts) == 0
		s.ReportArtifacts = append(s.ReportArtifacts, ref)
		if first && s.WorkflowStatus == StatusReportInProgress {
			s.ReportTimeline.FinalizedAt = &now
			s.setStatus(StatusReportFinalized, actor, now, "artifact upload finalized report")
		}
		return nil
	})
}

// MarkUploaded records delivery of the finalized report to the distribution
// channel.
func (l *ReportLifecycle) MarkUploaded(ctx context.Context, studyID, actor uuid.UUID) (*StudyRecord, error) {
	return l.transition(ctx, studyID, StatusReportUploaded, actor, "report uploaded")
}

// MarkDownloaded records a report download. kind distinguishes who pulled it:
// the reporting radiologist, the referring side, or the final signed copy.
func (l *ReportLifecycle) MarkDownloaded(ctx context.Context, studyID uuid.UUID, to WorkflowStatus, actor uuid.UUID) (*StudyRecord, error) {
	switch to {
	case StatusReportDownloadedRadiologist, StatusReportDownloaded, StatusFinalReportDownloaded:
	default:
		return nil, fmt.Errorf("mark downloaded to %s: %w", to, ErrInvalidTransition)
	}
	return l.transition(ctx, studyID, to, actor, "report downloaded")
}

func (l *ReportLifecycle) transition(ctx context.Context, studyID uuid.UUID, to WorkflowStatus, actor uuid.UUID, note string) (*StudyRecord, error) {
	return l.mutate(ctx, studyID, func(s *StudyRecord) error {
		if !IsValidTransition(s.WorkflowStatus, to) {
			return fmt.Errorf("transition %s -> %s: %w", s.WorkflowStatus, to, ErrInvalidTransition)
		}
		s.setStatus(to, actor, l.now().UTC(), note)
		return nil
	})
}

// mutate runs one read-modify-write cycle under optimistic concurrency,
// retrying version conflicts up to casRetries times.
func (l *ReportLifecycle) mutate(ctx context.Context, studyID uuid.UUID, apply func(*StudyRecord) error) (*StudyRecord, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		s, err := l.studies.GetByID(ctx, studyID)
		if err != nil {
			return nil, err
		}
		next := s.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}
		err = l.studies.UpdateVersioned(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("mutate study %s: %v: %w", studyID, lastErr, ErrConcurrentModification)
}

func requireAssignee(s *StudyRecord, doctorID uuid.UUID) error {
	if s.CurrentAssignee == nil || *s.CurrentAssignee != doctorID {
		return ErrNotAssigned
	}
	return nil
}

func mapBlobErr(err error) error {
	if errors.Is(err, blobstore.ErrTimeout) {
		return fmt.Errorf("store report: %w", ErrStorageTimeout)
	}
	return fmt.Errorf("store report: %w", err)
}
