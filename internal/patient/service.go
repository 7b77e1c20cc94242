package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
)

type Service interface {
	Add(ctx context.Context, ownerID uuid.UUID, in NewPatient) (*Patient, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]Patient, error)
	Search(ctx context.Context, ownerID uuid.UUID, query string) ([]Patient, error)
	// Delete leaves the patient's saved sessions untouched.
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *logger.Logger) Service {
	return &service{repo: repo, log: log.With("service", "patient"), now: time.Now}
}

func (s *service) Add(ctx context.Context, ownerID uuid.UUID, in NewPatient) (*Patient, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	p := &Patient{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Contact:   in.Contact,
		BirthDate: in.BirthDate,
		Notes:     in.Notes,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	s.log.Info("patient registered", "owner_id", ownerID, "patient_id", p.ID)
	return p, nil
}

func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.Get(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("patient")
	}
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	return p, nil
}

// List orders patients by name, case-insensitively.
func (s *service) List(ctx context.Context, ownerID uuid.UUID) ([]Patient, error) {
	patients, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	sort.SliceStable(patients, func(i, j int) bool {
		return strings.ToLower(patients[i].Name) < strings.ToLower(patients[j].Name)
	})
	return patients, nil
}

func (s *service) Search(ctx context.Context, ownerID uuid.UUID, query string) ([]Patient, error) {
	folded := strings.ToLower(strings.TrimSpace(query))
	if folded == "" {
		return []Patient{}, nil
	}
	patients, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]Patient, 0, SearchLimit)
	for i := range patients {
		if patients[i].matches(folded) {
			out = append(out, patients[i])
			if len(out) == SearchLimit {
				break
			}
		}
	}
	return out, nil
}

func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	err := s.repo.Delete(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return apierr.NotFound("patient")
	}
	if err != nil {
		return apierr.BackendUnavailable(err)
	}
	s.log.Info("patient deleted", "owner_id", ownerID, "patient_id", id)
	return nil
}
