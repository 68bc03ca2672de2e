package study

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStudyRepo is a thread-safe StudyRepository for tests and
// development. It enforces the same version semantics as the SQL
// implementation: writes land only when the caller's version is current.
type InMemoryStudyRepo struct {
	mu      sync.RWMutex
	studies map[uuid.UUID]*StudyRecord
}

// NewInMemoryStudyRepo returns a ready-to-use InMemoryStudyRepo.
func NewInMemoryStudyRepo() *InMemoryStudyRepo {
	return &InMemoryStudyRepo{studies: make(map[uuid.UUID]*StudyRecord)}
}

func (r *InMemoryStudyRepo) Create(_ context.Context, s *StudyRecord) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.Version = 1
	s.CreatedAt = now
	s.UpdatedAt = now

	r.mu.Lock()
	r.studies[s.ID] = s.Clone()
	r.mu.Unlock()
	return nil
}

func (r *InMemoryStudyRepo) GetByID(_ context.Context, id uuid.UUID) (*StudyRecord, error) {
	r.mu.RLock()
	s, ok := r.studies[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *InMemoryStudyRepo) UpdateVersioned(_ context.Context, s *StudyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.studies[s.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	r.studies[s.ID] = s.Clone()
	return nil
}

func (r *InMemoryStudyRepo) FindPage(_ context.Context, f Filter, limit, offset int) ([]*StudyRecord, int, error) {
	r.mu.RLock()
	var matched []*StudyRecord
	for _, s := range r.studies {
		if matchesFilter(s, f) {
			matched = append(matched, s.Clone())
		}
	}
	r.mu.RUnlock()

	sortStudies(matched)

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *InMemoryStudyRepo) CountByStatus(_ context.Context, f Filter) (map[WorkflowStatus]int, error) {
	f = f.WithoutStatuses()
	counts := make(map[WorkflowStatus]int)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.studies {
		if matchesFilter(s, f) {
			counts[s.WorkflowStatus]++
		}
	}
	return counts, nil
}

// sortStudies orders by assignment recency descending, then ingestion time
// descending. Never-assigned studies sort after assigned ones.
func sortStudies(studies []*StudyRecord) {
	sort.SliceStable(studies, func(i, j int) bool {
		ai, aj := studies[i].LastAssignedAt(), studies[j].LastAssignedAt()
		switch {
		case ai != nil && aj != nil && !ai.Equal(*aj):
			return ai.After(*aj)
		case ai != nil && aj == nil:
			return true
		case ai == nil && aj != nil:
			return false
		}
		return studies[i].IngestedAt.After(studies[j].IngestedAt)
	})
}

func matchesFilter(s *StudyRecord, f Filter) bool {
	if f.OwnerDoctor != nil {
		if s.CurrentAssignee == nil || *s.CurrentAssignee != *f.OwnerDoctor {
			return false
		}
	}
	if f.OwnerLab != "" && s.SourceLabRef != f.OwnerLab {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.WorkflowStatus) {
		return false
	}
	if f.Window.Start != nil || f.Window.End != nil {
		t := dateFieldValue(s, f.DateField)
		if t == nil || !f.Window.Contains(*t) {
			return false
		}
	}
	if f.FreeText != "" {
		needle := strings.ToLower(f.FreeText)
		if !strings.Contains(strings.ToLower(s.AccessionNumber), needle) &&
			!strings.Contains(strings.ToLower(s.ExternalStudyID), needle) {
			return false
		}
	}
	if f.Modality != "" && !containsFold(s.Modalities, f.Modality) {
		return false
	}
	if f.Priority != "" && s.Priority != f.Priority {
		return false
	}
	if f.Patient != "" && !strings.Contains(strings.ToLower(s.PatientRef), strings.ToLower(f.Patient)) {
		return false
	}
	return true
}

func dateFieldValue(s *StudyRecord, field DateField) *time.Time {
	switch field {
	case DateFieldStudyDate:
		return s.StudyDate
	case DateFieldAssignedAt:
		return s.LastAssignedAt()
	default:
		t := s.IngestedAt
		return &t
	}
}

func containsStatus(statuses []WorkflowStatus, s WorkflowStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
