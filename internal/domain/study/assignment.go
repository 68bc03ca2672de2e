package study

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// casRetries bounds how many times a mutation re-runs its read-modify-write
// cycle after a version conflict before surfacing ErrConcurrentModification.
const casRetries = 3

// AssignmentEngine assigns studies to reporting physicians. Every mutation is
// a compare-and-swap on the study's version: the record is read, the change
// prepared on a copy, and the write lands only if no concurrent actor won in
// between. Reassignment is the same operation with a different doctor.
type AssignmentEngine struct {
	studies StudyRepository
	now     func() time.Time
}

// NewAssignmentEngine creates an AssignmentEngine over the given repository.
func NewAssignmentEngine(studies StudyRepository) *AssignmentEngine {
	return &AssignmentEngine{studies: studies, now: time.Now}
}

// SetClock overrides the engine's clock. Tests only.
func (e *AssignmentEngine) SetClock(now func() time.Time) { e.now = now }

// Assign appends an assignment record for doctorID, recomputes the current
// assignee, and, when the study was still awaiting assignment, advances the
// status to assigned_to_doctor. Re-assigning mid-pipeline appends history
// without regressing the status.
//
// Fails with ErrNotFound, ErrInvalidTransition (archived study),
// ErrAlreadyAssigned (same doctor as the current assignee) or
// ErrConcurrentModification (retries exhausted).
func (e *AssignmentEngine) Assign(ctx context.Context, studyID, doctorID uuid.UUID, priority Priority, actor uuid.UUID) (*StudyRecord, error) {
	if !priority.IsValid() {
		priority = PriorityNormal
	}

	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		s, err := e.studies.GetByID(ctx, studyID)
		if err != nil {
			return nil, err
		}
		if s.WorkflowStatus.IsTerminal() {
			return nil, fmt.Errorf("assign archived study %s: %w", studyID, ErrInvalidTransition)
		}
		if s.CurrentAssignee != nil && *s.CurrentAssignee == doctorID {
			return nil, ErrAlreadyAssigned
		}

		now := e.now().UTC()
		next := s.Clone()
		next.appendAssignment(AssignmentRecord{
			DoctorID:   doctorID,
			AssignedAt: now,
			AssignedBy: actor,
			Priority:   priority,
		})
		if next.WorkflowStatus == StatusNewStudyReceived || next.WorkflowStatus == StatusPendingAssignment {
			next.setStatus(StatusAssignedToDoctor, actor, now, "assigned")
		}

		err = e.studies.UpdateVersioned(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("assign study %s: %v: %w", studyID, lastErr, ErrConcurrentModification)
}

// Archive administratively moves a study to the terminal archived state from
// any non-terminal state.
func (e *AssignmentEngine) Archive(ctx context.Context, studyID, actor uuid.UUID, note string) (*StudyRecord, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		s, err := e.studies.GetByID(ctx, studyID)
		if err != nil {
			return nil, err
		}
		if !IsValidTransition(s.WorkflowStatus, StatusArchived) {
			return nil, fmt.Errorf("archive study %s in state %s: %w", studyID, s.WorkflowStatus, ErrInvalidTransition)
		}

		next := s.Clone()
		next.setStatus(StatusArchived, actor, e.now().UTC(), note)

		err = e.studies.UpdateVersioned(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("archive study %s: %v: %w", studyID, lastErr, ErrConcurrentModification)
}
