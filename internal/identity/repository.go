package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/database"
)

var (
	ErrNotFound  = errors.New("identity record not found")
	ErrDuplicate = errors.New("identity already registered")
)

type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	MarkEmailConfirmed(ctx context.Context, id uuid.UUID) error

	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfileDetails(ctx context.Context, p *Profile) error
	SetAuthorized(ctx context.Context, userID uuid.UUID, authorized bool, updatedAt int64) error
	ListMembers(ctx context.Context) ([]Member, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) error

	CreateToken(ctx context.Context, t *Token) error
	// ConsumeToken deletes and returns the token; single use.
	ConsumeToken(ctx context.Context, token string, purpose TokenPurpose) (*Token, error)
}

type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

const userColumns = `id, email, password_hash, email_confirmed, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u       User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailConfirmed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = database.FromMillis(created)
	return &u, nil
}

func (r *sqlRepo) CreateUser(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.EmailConfirmed, database.Millis(u.CreatedAt))
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *sqlRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *sqlRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *sqlRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id))
}

func (r *sqlRepo) MarkEmailConfirmed(ctx context.Context, id uuid.UUID) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE users SET email_confirmed = TRUE WHERE id = $1`, id))
}

const profileColumns = `user_id, display_name, registration_id, business_contact, signature, is_authorized, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }, extra ...any) (*Profile, error) {
	var (
		p                Profile
		created, updated int64
	)
	dest := append([]any{&p.UserID, &p.DisplayName, &p.RegistrationID, &p.BusinessContact, &p.Signature, &p.IsAuthorized, &created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = database.FromMillis(created)
	p.UpdatedAt = database.FromMillis(updated)
	return &p, nil
}

func (r *sqlRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
}

func (r *sqlRepo) CreateProfile(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.UserID, p.DisplayName, p.RegistrationID, p.BusinessContact, p.Signature, p.IsAuthorized,
		database.Millis(p.CreatedAt), database.Millis(p.UpdatedAt))
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *sqlRepo) UpdateProfileDetails(ctx context.Context, p *Profile) error {
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE profiles SET display_name = $1, registration_id = $2, business_contact = $3, signature = $4, updated_at = $5
		WHERE user_id = $6`,
		p.DisplayName, p.RegistrationID, p.BusinessContact, p.Signature, database.Millis(p.UpdatedAt), p.UserID))
}

func (r *sqlRepo) SetAuthorized(ctx context.Context, userID uuid.UUID, authorized bool, updatedAt int64) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE profiles SET is_authorized = $1, updated_at = $2 WHERE user_id = $3`, authorized, updatedAt, userID))
}

func (r *sqlRepo) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.user_id, p.display_name, p.registration_id, p.business_contact, p.signature, p.is_authorized,
		       p.created_at, p.updated_at, u.email
		FROM profiles p JOIN users u ON u.id = p.user_id
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var email string
		p, err := scanProfile(rows, &email)
		if err != nil {
			return nil, err
		}
		out = append(out, Member{Profile: *p, Email: email})
	}
	return out, rows.Err()
}

func (r *sqlRepo) CreateSession(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, database.Millis(s.CreatedAt), database.Millis(s.ExpiresAt))
	return err
}

func (r *sqlRepo) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var (
		s                Session
		created, expires int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = database.FromMillis(created)
	s.ExpiresAt = database.FromMillis(expires)
	return &s, nil
}

func (r *sqlRepo) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id))
}

func (r *sqlRepo) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, userID)
	return err
}

func (r *sqlRepo) CreateToken(ctx context.Context, t *Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (token, user_id, purpose, expires_at) VALUES ($1, $2, $3, $4)`,
		t.Token, t.UserID, string(t.Purpose), database.Millis(t.ExpiresAt))
	return err
}

func (r *sqlRepo) ConsumeToken(ctx context.Context, token string, purpose TokenPurpose) (*Token, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		t       Token
		p       string
		expires int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT token, user_id, purpose, expires_at FROM auth_tokens WHERE token = $1 AND purpose = $2`,
		token, string(purpose),
	).Scan(&t.Token, &t.UserID, &p, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE token = $1`, token); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit token consume: %w", err)
	}
	t.Purpose = TokenPurpose(p)
	t.ExpiresAt = database.FromMillis(expires)
	return &t, nil
}

func expectOne(res sql.Result, err error) error {
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
