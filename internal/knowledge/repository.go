package knowledge

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/database"
)

var ErrNotFound = errors.New("knowledge entry not found")

// Repository stores custom entries only; defaults never touch storage.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, ownerID uuid.UUID) ([]Entry, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, ownerID uuid.UUID, id string) error
	DeleteAll(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) Create(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO knowledge_pairs (id, owner_id, name, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.OwnerID, e.Name, e.Description, database.Millis(e.CreatedAt))
	return err
}

// List returns custom entries oldest first.
func (r *sqlRepo) List(ctx context.Context, ownerID uuid.UUID) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, created_at
		FROM knowledge_pairs WHERE owner_id = $1
		ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Description, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = database.FromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *sqlRepo) Update(ctx context.Context, e *Entry) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE knowledge_pairs SET name = $1, description = $2 WHERE owner_id = $3 AND id = $4`,
		e.Name, e.Description, e.OwnerID, e.ID)
	return affected(res, err)
}

func (r *sqlRepo) Delete(ctx context.Context, ownerID uuid.UUID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_pairs WHERE owner_id = $1 AND id = $2`, ownerID, id)
	return affected(res, err)
}

func (r *sqlRepo) DeleteAll(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_pairs WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func affected(res sql.Result, err error) error {
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
