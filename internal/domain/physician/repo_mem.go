package physician

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepo backs the physician repository with a map. Used by tests and
// by the dev server profile.
type InMemoryRepo struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]*Doctor
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func cloneDoctor(d *Doctor) *Doctor {
	cp := *d
	cp.Modalities = append([]string(nil), d.Modalities...)
	if d.DisabledAt != nil {
		t := *d.DisabledAt
		cp.DisabledAt = &t
	}
	return &cp
}

func (r *InMemoryRepo) Create(ctx context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.doctors[d.ID] = cloneDoctor(d)
	return nil
}

func (r *InMemoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoctor(d), nil
}

func (r *InMemoryRepo) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if strings.EqualFold(d.Email, email) {
			return cloneDoctor(d), nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepo) Update(ctx context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[d.ID]; !ok {
		return ErrNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	r.doctors[d.ID] = cloneDoctor(d)
	return nil
}

func (r *InMemoryRepo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Doctor
	for _, d := range r.doctors {
		if activeOnly && !d.Active {
			continue
		}
		all = append(all, cloneDoctor(d))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
