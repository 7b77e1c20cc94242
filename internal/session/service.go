package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"biomagnet-assist/internal/knowledge"
	"biomagnet-assist/internal/patient"
	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
	"biomagnet-assist/internal/platform/metrics"
)

// Analyst produces a structured analysis. Failures are apierr errors with
// the analysis_unavailable or analysis_malformed code.
type Analyst interface {
	RequestAnalysis(ctx context.Context, req AnalystRequest) (*Analysis, error)
}

type PatientLookup interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*patient.Patient, error)
}

type KnowledgeSource interface {
	Custom(ctx context.Context, ownerID uuid.UUID) ([]knowledge.Entry, error)
}

type Service interface {
	Analyze(ctx context.Context, ownerID uuid.UUID, req AnalysisRequest) (*Analysis, error)
	Save(ctx context.Context, ownerID uuid.UUID, req SaveRequest) (*SavedSession, error)
	List(ctx context.Context, ownerID uuid.UUID, patientID string) ([]SavedSession, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*SavedSession, error)
}

type Option func(*service)

// WithAnalysisTimeout bounds each analyst call.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *service) { s.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *service) { s.metrics = m }
}

type service struct {
	repo      Repository
	analyst   Analyst
	patients  PatientLookup
	knowledge KnowledgeSource
	metrics   *metrics.Metrics
	log       *logger.Logger
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewService(repo Repository, analyst Analyst, patients PatientLookup, kb KnowledgeSource, log *logger.Logger, opts ...Option) Service {
	s := &service{
		repo:      repo,
		analyst:   analyst,
		patients:  patients,
		knowledge: kb,
		log:       log.With("service", "session"),
		now:       time.Now,
		inFlight:  make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze validates the intake form and requests an analysis. A user has
// at most one analysis in flight.
func (s *service) Analyze(ctx context.Context, ownerID uuid.UUID, req AnalysisRequest) (*Analysis, error) {
	typ, err := ParseSessionType(req.SessionType)
	if err != nil {
		return nil, apierr.Validation("%v", err)
	}
	complaint := strings.TrimSpace(req.Complaint)
	if complaint == "" {
		return nil, apierr.Validation("complaint is required")
	}
	if strings.TrimSpace(req.PairsText) == "" {
		return nil, apierr.Validation("pairs list is required")
	}

	if !s.acquire(ownerID) {
		return nil, apierr.Conflict(apierr.CodeAnalysisInProgress, "an analysis is already running for this account")
	}
	defer s.release(ownerID)

	custom, err := s.knowledge.Custom(ctx, ownerID)
	if err != nil {
		s.log.Warn("custom knowledge unavailable, using defaults only", "owner_id", ownerID, "error", err)
		custom = nil
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	analysis, err := s.analyst.RequestAnalysis(callCtx, AnalystRequest{
		SessionType: typ,
		Complaint:   complaint,
		PairsText:   req.PairsText,
		Knowledge:   custom,
	})
	if err != nil {
		if _, ok := apierr.As(err); !ok {
			err = apierr.AnalysisUnavailable(err)
		}
		s.metrics.ObserveAnalysis(string(typ), apierr.CodeOf(err))
		s.log.Warn("analysis failed", "owner_id", ownerID, "session_type", string(typ), "code", apierr.CodeOf(err), "error", err)
		return nil, err
	}
	s.metrics.ObserveAnalysis(string(typ), "ok")
	s.log.Info("analysis completed", "owner_id", ownerID, "session_type", string(typ),
		"findings", len(analysis.PairFindings), "elapsed", s.now().Sub(start))
	return analysis, nil
}

func (s *service) acquire(ownerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[ownerID]; busy {
		return false
	}
	s.inFlight[ownerID] = struct{}{}
	return true
}

func (s *service) release(ownerID uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, ownerID)
	s.mu.Unlock()
}

// Save snapshots the patient name. Later patient deletion leaves it intact.
func (s *service) Save(ctx context.Context, ownerID uuid.UUID, req SaveRequest) (*SavedSession, error) {
	if err := req.Analysis.Validate(); err != nil {
		return nil, apierr.Validation("invalid analysis: %v", err)
	}

	saved := &SavedSession{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Analysis:  req.Analysis,
		CreatedAt: s.now().UTC(),
	}

	ref := strings.TrimSpace(req.PatientID)
	if ref == "" || ref == WalkInID {
		saved.PatientID = WalkInID
		saved.PatientName = WalkInLabel
	} else {
		id, err := uuid.Parse(ref)
		if err != nil {
			return nil, apierr.NotFound("patient")
		}
		p, err := s.patients.Get(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		saved.PatientID = p.ID.String()
		saved.PatientName = p.Name
	}

	if err := s.repo.Create(ctx, saved); err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	s.log.Info("session saved", "owner_id", ownerID, "session", saved.ID, "walk_in", saved.IsWalkIn())
	return saved, nil
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, patientID string) ([]SavedSession, error) {
	sessions, err := s.repo.List(ctx, ownerID, strings.TrimSpace(patientID))
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	return sessions, nil
}

func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (*SavedSession, error) {
	saved, err := s.repo.Get(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("session")
	}
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	return saved, nil
}
