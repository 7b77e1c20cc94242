package patient

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/database"
)

var ErrNotFound = errors.New("patient not found")

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]Patient, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

const columns = `id, owner_id, name, contact, birth_date, notes, created_at`

func scan(row interface{ Scan(...any) error }) (*Patient, error) {
	var (
		p       Patient
		created int64
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Contact, &p.BirthDate, &p.Notes, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = database.FromMillis(created)
	return &p, nil
}

func (r *sqlRepo) Create(ctx context.Context, p *Patient) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO patients (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OwnerID, p.Name, p.Contact, p.BirthDate, p.Notes, database.Millis(p.CreatedAt))
	return err
}

func (r *sqlRepo) Get(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	p, err := scan(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM patients WHERE owner_id = $1 AND id = $2`, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// List returns the owner's patients in insertion order; callers sort.
func (r *sqlRepo) List(ctx context.Context, ownerID uuid.UUID) ([]Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM patients WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *sqlRepo) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
