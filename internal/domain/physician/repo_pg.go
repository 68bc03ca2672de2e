package physician

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radpipe/radpipe/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the PostgreSQL physician repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, name, email, specialty, modalities, active, created_at, updated_at, disabled_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var modalities []byte
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Specialty, &modalities,
		&d.Active, &d.CreatedAt, &d.UpdatedAt, &d.DisabledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan physician: %w", err)
	}
	if len(modalities) > 0 {
		if err := json.Unmarshal(modalities, &d.Modalities); err != nil {
			return nil, fmt.Errorf("decode modalities: %w", err)
		}
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	modalities, err := json.Marshal(d.Modalities)
	if err != nil {
		return fmt.Errorf("encode modalities: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO physicians (id, name, email, specialty, modalities, active, created_at, updated_at, disabled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Name, d.Email, d.Specialty, modalities, d.Active, d.CreatedAt, d.UpdatedAt, d.DisabledAt)
	if err != nil {
		return fmt.Errorf("insert physician: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM physicians WHERE id = $1`, id)
	return scanDoctor(row)
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM physicians WHERE lower(email) = lower($1)`, email)
	return scanDoctor(row)
}

func (r *repoPG) Update(ctx context.Context, d *Doctor) error {
	d.UpdatedAt = time.Now().UTC()
	modalities, err := json.Marshal(d.Modalities)
	if err != nil {
		return fmt.Errorf("encode modalities: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE physicians
		SET name = $2, email = $3, specialty = $4, modalities = $5,
		    active = $6, updated_at = $7, disabled_at = $8
		WHERE id = $1`,
		d.ID, d.Name, d.Email, d.Specialty, modalities, d.Active, d.UpdatedAt, d.DisabledAt)
	if err != nil {
		return fmt.Errorf("update physician: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	where := ""
	if activeOnly {
		where = " WHERE active"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM physicians`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count physicians: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM physicians`+where+` ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list physicians: %w", err)
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}
