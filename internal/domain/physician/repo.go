package physician

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error)
}
