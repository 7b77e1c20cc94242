package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
)

type Service interface {
	// List returns the effective knowledge base: defaults in fixed order,
	// then custom entries oldest first, deduplicated by folded name.
	List(ctx context.Context, ownerID uuid.UUID) ([]Entry, error)
	// Custom returns the effective entries that are not defaults.
	Custom(ctx context.Context, ownerID uuid.UUID) ([]Entry, error)
	Search(ctx context.Context, ownerID uuid.UUID, query string) ([]Entry, error)
	Add(ctx context.Context, ownerID uuid.UUID, in EntryInput) (*Entry, error)
	Update(ctx context.Context, ownerID uuid.UUID, id string, in EntryInput) (*Entry, error)
	Delete(ctx context.Context, ownerID uuid.UUID, id string) error
	// Reset drops every custom entry. Calling it on a pristine base is a no-op.
	Reset(ctx context.Context, ownerID uuid.UUID) error
}

type service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *logger.Logger) Service {
	return &service{repo: repo, log: log.With("service", "knowledge"), now: time.Now}
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID) ([]Entry, error) {
	custom, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	return merge(Defaults(), custom), nil
}

func (s *service) Custom(ctx context.Context, ownerID uuid.UUID) ([]Entry, error) {
	all, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if !e.IsDefault {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *service) Search(ctx context.Context, ownerID uuid.UUID, query string) ([]Entry, error) {
	folded := strings.ToLower(strings.TrimSpace(query))
	if folded == "" {
		return []Entry{}, nil
	}
	all, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, SearchLimit)
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Name), folded) {
			out = append(out, e)
			if len(out) == SearchLimit {
				break
			}
		}
	}
	return out, nil
}

func (s *service) Add(ctx context.Context, ownerID uuid.UUID, in EntryInput) (*Entry, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	e := &Entry{
		ID:          newCustomID(),
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	s.log.Info("knowledge entry added", "owner_id", ownerID, "entry", e.ID)
	return e, nil
}

func (s *service) Update(ctx context.Context, ownerID uuid.UUID, id string, in EntryInput) (*Entry, error) {
	if IsDefaultID(id) {
		return nil, apierr.ReservedEntry(id)
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	e := &Entry{ID: id, OwnerID: ownerID, Name: in.Name, Description: in.Description}
	if err := s.repo.Update(ctx, e); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.NotFound("knowledge entry " + id)
		}
		return nil, apierr.BackendUnavailable(err)
	}
	return s.find(ctx, ownerID, id, e)
}

// find reloads id so the response carries the stored creation time.
func (s *service) find(ctx context.Context, ownerID uuid.UUID, id string, fallback *Entry) (*Entry, error) {
	custom, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return fallback, nil
	}
	for i := range custom {
		if custom[i].ID == id {
			return &custom[i], nil
		}
	}
	return fallback, nil
}

func (s *service) Delete(ctx context.Context, ownerID uuid.UUID, id string) error {
	if IsDefaultID(id) {
		return apierr.ReservedEntry(id)
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierr.NotFound("knowledge entry " + id)
		}
		return apierr.BackendUnavailable(err)
	}
	s.log.Info("knowledge entry deleted", "owner_id", ownerID, "entry", id)
	return nil
}

func (s *service) Reset(ctx context.Context, ownerID uuid.UUID) error {
	n, err := s.repo.DeleteAll(ctx, ownerID)
	if err != nil {
		return apierr.BackendUnavailable(err)
	}
	s.log.Info("knowledge base reset", "owner_id", ownerID, "removed", n)
	return nil
}

// merge applies the dedup rule: the first entry with a given folded name
// wins, so defaults beat customs and older customs beat newer ones.
func merge(defaults, custom []Entry) []Entry {
	seen := make(map[string]struct{}, len(defaults)+len(custom))
	out := make([]Entry, 0, len(defaults)+len(custom))
	for _, group := range [][]Entry{defaults, custom} {
		for _, e := range group {
			key := foldName(e.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
