package physician

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radpipe/radpipe/internal/domain/study"
	"github.com/radpipe/radpipe/internal/domain/timewindow"
	"github.com/radpipe/radpipe/internal/platform/auth"
)

type Service struct {
	repo    Repository
	queries *study.QueryEngine
}

func NewService(repo Repository, queries *study.QueryEngine) *Service {
	return &Service{repo: repo, queries: queries}
}

func (s *Service) RegisterDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if existing, err := s.repo.GetByEmail(ctx, d.Email); err == nil && existing != nil {
		return ErrInvalidEmail
	}
	d.Active = true
	return s.repo.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, d)
}

// Deactivate removes the doctor from the assignable pool. Existing
// assignments are untouched.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !d.Active {
		return nil
	}
	now := time.Now().UTC()
	d.Active = false
	d.DisabledAt = &now
	return s.repo.Update(ctx, d)
}

func (s *Service) ListDoctors(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.List(ctx, activeOnly, limit, offset)
}

// Worklist is the doctor dashboard query: the studies currently owned by the
// doctor, windowed by preset, with category badge counts.
func (s *Service) Worklist(ctx context.Context, doctorID uuid.UUID, q study.Query) (*study.QueryResult, error) {
	if _, err := s.repo.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	q.OwnerDoctor = &doctorID
	if q.DatePreset == "" {
		q.DatePreset = timewindow.PresetAssignedToday
	}
	return s.queries.Run(ctx, q)
}

// Resolve implements auth.ActorDirectory for physician principals.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("physician %s: %w", id, auth.ErrUnknownIdentity)
		}
		return nil, err
	}
	return &auth.Identity{ID: d.ID, Name: d.Name, Roles: []string{auth.RolePhysician}}, nil
}
