// Package imaging defines the read-only collaborator that supplies study
// metadata from the imaging server. The workflow core consumes it only at
// ingestion time and treats external study identifiers as opaque.
package imaging

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStudyUnknown is returned when the imaging source has no record of the
// external study identifier.
var ErrStudyUnknown = errors.New("external study not known to imaging source")

// StudyDescription is the metadata the imaging source holds for a study.
type StudyDescription struct {
	Modalities  []string   `json:"modalities"`
	StudyDate   *time.Time `json:"study_date,omitempty"`
	StudyTime   string     `json:"study_time,omitempty"`
	SeriesCount int        `json:"series_count"`
	ImageCount  int        `json:"image_count"`
}

// ImagingSource describes studies by their external identifier.
type ImagingSource interface {
	DescribeStudy(ctx context.Context, externalStudyID string) (*StudyDescription, error)
}

// StaticSource is an in-memory ImagingSource for testing and development.
type StaticSource struct {
	mu      sync.RWMutex
	studies map[string]StudyDescription
}

// NewStaticSource returns an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{studies: make(map[string]StudyDescription)}
}

// Add registers a study description under the given external identifier.
func (s *StaticSource) Add(externalStudyID string, desc StudyDescription) {
	s.mu.Lock()
	s.studies[externalStudyID] = desc
	s.mu.Unlock()
}

// DescribeStudy implements ImagingSource.
func (s *StaticSource) DescribeStudy(_ context.Context, externalStudyID string) (*StudyDescription, error) {
	s.mu.RLock()
	desc, ok := s.studies[externalStudyID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStudyUnknown
	}
	out := desc // copy
	return &out, nil
}
