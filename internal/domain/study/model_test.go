package study

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAppendAssignment_DerivesCurrentAssignee(t *testing.T) {
	s := &StudyRecord{WorkflowStatus: StatusNewStudyReceived}
	if s.CurrentAssignee != nil {
		t.Fatal("fresh study must have no assignee")
	}

	d1, d2 := uuid.New(), uuid.New()
	now := time.Now().UTC()

	s.appendAssignment(AssignmentRecord{DoctorID: d1, AssignedAt: now})
	if s.CurrentAssignee == nil || *s.CurrentAssignee != d1 {
		t.Errorf("CurrentAssignee = %v, want %s", s.CurrentAssignee, d1)
	}

	s.appendAssignment(AssignmentRecord{DoctorID: d2, AssignedAt: now.Add(time.Minute)})
	if *s.CurrentAssignee != d2 {
		t.Errorf("CurrentAssignee = %s, want %s after reassignment", *s.CurrentAssignee, d2)
	}
	if len(s.Assignments) != 2 {
		t.Errorf("assignment history length = %d, want 2", len(s.Assignments))
	}
	if s.Assignments[0].DoctorID != d1 {
		t.Error("earlier assignment history entry was modified")
	}
}

func TestLastAssignedAt(t *testing.T) {
	s := &StudyRecord{}
	if s.LastAssignedAt() != nil {
		t.Error("never-assigned study must report nil")
	}

	t1 := time.Now().UTC()
	t2 := t1.Add(time.Hour)
	s.appendAssignment(AssignmentRecord{DoctorID: uuid.New(), AssignedAt: t1})
	s.appendAssignment(AssignmentRecord{DoctorID: uuid.New(), AssignedAt: t2})
	if got := s.LastAssignedAt(); got == nil || !got.Equal(t2) {
		t.Errorf("LastAssignedAt = %v, want %v", got, t2)
	}
}

func TestSetStatus_MonotonicHistory(t *testing.T) {
	s := &StudyRecord{WorkflowStatus: StatusNewStudyReceived}
	actor := uuid.New()
	base := time.Now().UTC()

	s.setStatus(StatusAssignedToDoctor, actor, base, "")
	// A clock running behind must not produce out-of-order history.
	s.setStatus(StatusReportInProgress, actor, base.Add(-time.Hour), "")
	s.setStatus(StatusReportFinalized, actor, base.Add(time.Minute), "")

	for i := 1; i < len(s.StatusHistory); i++ {
		prev, cur := s.StatusHistory[i-1].ChangedAt, s.StatusHistory[i].ChangedAt
		if cur.Before(prev) {
			t.Errorf("history entry %d at %v precedes entry %d at %v", i, cur, i-1, prev)
		}
	}
	if s.WorkflowStatus != StatusReportFinalized {
		t.Errorf("status = %s", s.WorkflowStatus)
	}
}

func TestClone_Independence(t *testing.T) {
	d := uuid.New()
	sd := time.Now().UTC()
	s := &StudyRecord{
		ID:             uuid.New(),
		Modalities:     []string{"CT"},
		StudyDate:      &sd,
		WorkflowStatus: StatusAssignedToDoctor,
	}
	s.appendAssignment(AssignmentRecord{DoctorID: d, AssignedAt: sd})

	c := s.Clone()
	c.Modalities[0] = "MR"
	c.appendAssignment(AssignmentRecord{DoctorID: uuid.New(), AssignedAt: sd.Add(time.Hour)})
	*c.StudyDate = sd.Add(48 * time.Hour)

	if s.Modalities[0] != "CT" {
		t.Error("clone shares modalities slice")
	}
	if len(s.Assignments) != 1 {
		t.Error("clone shares assignments slice")
	}
	if !s.StudyDate.Equal(sd) {
		t.Error("clone shares StudyDate pointer")
	}
	if *s.CurrentAssignee != d {
		t.Error("clone mutation leaked into original assignee")
	}
}

func TestPriority(t *testing.T) {
	for _, p := range []Priority{PriorityUrgent, PriorityStat, PriorityEmergency} {
		if !p.IsCritical() {
			t.Errorf("%s should be critical", p)
		}
	}
	if PriorityNormal.IsCritical() {
		t.Error("NORMAL should not be critical")
	}
	if Priority("ROUTINE").IsValid() {
		t.Error("unrecognized priority should be invalid")
	}
}
