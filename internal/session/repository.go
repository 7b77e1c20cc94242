package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/database"
)

var ErrNotFound = errors.New("session not found")

// Repository is append-only: there is no update or delete.
type Repository interface {
	Create(ctx context.Context, s *SavedSession) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*SavedSession, error)
	// List returns sessions newest first; an empty patientID means all.
	List(ctx context.Context, ownerID uuid.UUID, patientID string) ([]SavedSession, error)
}

type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

const columns = `id, owner_id, patient_id, patient_name, session_type, complaint, analysis_narrative,
	pair_findings, patient_summary, therapist_suggestions, created_at`

func scan(row interface{ Scan(...any) error }) (*SavedSession, error) {
	var (
		s        SavedSession
		typ      string
		findings string
		created  int64
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.PatientID, &s.PatientName, &typ, &s.Complaint, &s.AnalysisNarrative,
		&findings, &s.PatientSummary, &s.TherapistSuggestions, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(findings), &s.PairFindings); err != nil {
		return nil, fmt.Errorf("decode pair findings of %s: %w", s.ID, err)
	}
	s.SessionType = SessionType(typ)
	s.CreatedAt = database.FromMillis(created)
	return &s, nil
}

func (r *sqlRepo) Create(ctx context.Context, s *SavedSession) error {
	findings, err := json.Marshal(s.PairFindings)
	if err != nil {
		return fmt.Errorf("encode pair findings: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.OwnerID, s.PatientID, s.PatientName, string(s.SessionType), s.Complaint, s.AnalysisNarrative,
		string(findings), s.PatientSummary, s.TherapistSuggestions, database.Millis(s.CreatedAt))
	return err
}

func (r *sqlRepo) Get(ctx context.Context, ownerID, id uuid.UUID) (*SavedSession, error) {
	s, err := scan(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM sessions WHERE owner_id = $1 AND id = $2`, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *sqlRepo) List(ctx context.Context, ownerID uuid.UUID, patientID string) ([]SavedSession, error) {
	query := `SELECT ` + columns + ` FROM sessions WHERE owner_id = $1`
	args := []any{ownerID}
	if patientID != "" {
		query += ` AND patient_id = $2`
		args = append(args, patientID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedSession
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
