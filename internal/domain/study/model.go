package study

import (
	"time"

	"github.com/google/uuid"
)

// Priority classifies how urgently a study must be reported.
type Priority string

const (
	PriorityNormal    Priority = "NORMAL"
	PriorityUrgent    Priority = "URGENT"
	PriorityStat      Priority = "STAT"
	PriorityEmergency Priority = "EMERGENCY"
)

var validPriorities = map[Priority]bool{
	PriorityNormal:    true,
	PriorityUrgent:    true,
	PriorityStat:      true,
	PriorityEmergency: true,
}

// IsValid reports whether p is a recognized priority.
func (p Priority) IsValid() bool { return validPriorities[p] }

// IsCritical reports whether p falls under the short SLA threshold.
func (p Priority) IsCritical() bool {
	return p == PriorityUrgent || p == PriorityStat || p == PriorityEmergency
}

// AssignmentRecord is one entry of a study's append-only assignment history.
// Immutable once appended.
type AssignmentRecord struct {
	DoctorID   uuid.UUID `db:"doctor_id" json:"doctor_id"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
	AssignedBy uuid.UUID `db:"assigned_by" json:"assigned_by"`
	Priority   Priority  `db:"priority" json:"priority"`
}

// StatusHistoryEntry records one workflow transition. Immutable once
// appended; ChangedAt values are non-decreasing across the list.
type StatusHistoryEntry struct {
	Status    WorkflowStatus `db:"status" json:"status"`
	ChangedAt time.Time      `db:"changed_at" json:"changed_at"`
	ChangedBy uuid.UUID      `db:"changed_by" json:"changed_by"`
	Note      string         `db:"note" json:"note,omitempty"`
}

// ReportTimeline holds the report authoring milestones. StartedAt is set once
// and never overwritten; FinalizedAt is overwritten on every finalization
// (re-finalizing a report is allowed).
type ReportTimeline struct {
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinalizedAt *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
}

// ArtifactRef points at a stored report artifact in the blob store.
type ArtifactRef struct {
	BlobID      string    `db:"blob_id" json:"blob_id"`
	ContentType string    `db:"content_type" json:"content_type"`
	Kind        string    `db:"kind" json:"kind"`
	AttachedAt  time.Time `db:"attached_at" json:"attached_at"`
	AttachedBy  uuid.UUID `db:"attached_by" json:"attached_by"`
}

// StudyRecord maps to the study table. It is created once by ingestion in
// state new_study_received, mutated only through the assignment engine and
// report lifecycle, and never deleted — only archived.
//
// CurrentAssignee is a strictly-derived cache of the last assignment's
// doctor; it is recomputed inside the same versioned write as every mutation
// and must never be written independently of Assignments.
type StudyRecord struct {
	ID              uuid.UUID            `db:"id" json:"id"`
	PatientRef      string               `db:"patient_ref" json:"patient_ref"`
	SourceLabRef    string               `db:"source_lab_ref" json:"source_lab_ref"`
	ExternalStudyID string               `db:"external_study_id" json:"external_study_id"`
	AccessionNumber string               `db:"accession_number" json:"accession_number"`
	Modalities      []string             `db:"modalities" json:"modalities"`
	StudyDate       *time.Time           `db:"study_date" json:"study_date,omitempty"`
	StudyTime       string               `db:"study_time" json:"study_time,omitempty"`
	IngestedAt      time.Time            `db:"ingested_at" json:"ingested_at"`
	WorkflowStatus  WorkflowStatus       `db:"workflow_status" json:"workflow_status"`
	Priority        Priority             `db:"priority" json:"priority"`
	CaseType        string               `db:"case_type" json:"case_type,omitempty"`
	Assignments     []AssignmentRecord   `db:"assignments" json:"assignments"`
	CurrentAssignee *uuid.UUID           `db:"current_assignee" json:"current_assignee,omitempty"`
	StatusHistory   []StatusHistoryEntry `db:"status_history" json:"status_history"`
	ReportTimeline  ReportTimeline       `db:"report_timeline" json:"report_timeline"`
	ReportArtifacts []ArtifactRef        `db:"report_artifacts" json:"report_artifacts"`
	Version         int                  `db:"version" json:"version"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (s *StudyRecord) GetVersionID() int { return s.Version }

// SetVersionID sets the current version.
func (s *StudyRecord) SetVersionID(v int) { s.Version = v }

// Category returns the dashboard category of the study's current status.
func (s *StudyRecord) Category() Category { return CategoryOf(s.WorkflowStatus) }

// LastAssignedAt returns the instant of the most recent assignment, or nil if
// the study has never been assigned.
func (s *StudyRecord) LastAssignedAt() *time.Time {
	if len(s.Assignments) == 0 {
		return nil
	}
	t := s.Assignments[len(s.Assignments)-1].AssignedAt
	return &t
}

// setStatus appends a history entry and moves the study to the new status.
// Callers validate the transition first; setStatus only records it.
func (s *StudyRecord) setStatus(to WorkflowStatus, by uuid.UUID, at time.Time, note string) {
	// ChangedAt must be non-decreasing across the history list.
	if n := len(s.StatusHistory); n > 0 && at.Before(s.StatusHistory[n-1].ChangedAt) {
		at = s.StatusHistory[n-1].ChangedAt
	}
	s.WorkflowStatus = to
	s.StatusHistory = append(s.StatusHistory, StatusHistoryEntry{
		Status:    to,
		ChangedAt: at,
		ChangedBy: by,
		Note:      note,
	})
}

// appendAssignment appends an assignment record and recomputes the
// CurrentAssignee pointer from the history it just extended.
func (s *StudyRecord) appendAssignment(rec AssignmentRecord) {
	s.Assignments = append(s.Assignments, rec)
	doctor := s.Assignments[len(s.Assignments)-1].DoctorID
	s.CurrentAssignee = &doctor
}

// Clone returns a deep copy of the record so mutations can be prepared
// without touching the version the repository handed out.
func (s *StudyRecord) Clone() *StudyRecord {
	out := *s
	out.Modalities = append([]string(nil), s.Modalities...)
	out.Assignments = append([]AssignmentRecord(nil), s.Assignments...)
	out.StatusHistory = append([]StatusHistoryEntry(nil), s.StatusHistory...)
	out.ReportArtifacts = append([]ArtifactRef(nil), s.ReportArtifacts...)
	if s.StudyDate != nil {
		d := *s.StudyDate
		out.StudyDate = &d
	}
	if s.CurrentAssignee != nil {
		a := *s.CurrentAssignee
		out.CurrentAssignee = &a
	}
	if s.ReportTimeline.StartedAt != nil {
		t := *s.ReportTimeline.StartedAt
		out.ReportTimeline.StartedAt = &t
	}
	if s.ReportTimeline.FinalizedAt != nil {
		t := *s.ReportTimeline.FinalizedAt
		out.ReportTimeline.FinalizedAt = &t
	}
	return &out
}
