package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"biomagnet-assist/internal/knowledge"
)

// SessionType selects the instruction template of an analysis.
type SessionType string

const (
	Clinical  SessionType = "clinical"
	Emotional SessionType = "emotional"
)

// ParseSessionType accepts the two known types; empty means Clinical.
func ParseSessionType(s string) (SessionType, error) {
	switch SessionType(strings.ToLower(strings.TrimSpace(s))) {
	case "", Clinical:
		return Clinical, nil
	case Emotional:
		return Emotional, nil
	}
	return "", fmt.Errorf("unknown session type %q", s)
}

const (
	// WalkInID is the patient reference of a session with no registered patient.
	WalkInID    = "anonymous"
	WalkInLabel = "Paciente Avulso"
)

type PairFinding struct {
	PairLabel         string `json:"pairLabel"`
	LocationOrEmotion string `json:"locationOrEmotion"`
	PathogenOrMeaning string `json:"pathogenOrMeaning"`
}

// Analysis is the structured result of one analysis request, before saving.
type Analysis struct {
	SessionType          SessionType   `json:"sessionType"`
	Complaint            string        `json:"complaint"`
	AnalysisNarrative    string        `json:"analysisNarrative"`
	PairFindings         []PairFinding `json:"pairFindings"`
	PatientSummary       string        `json:"patientSummary"`
	TherapistSuggestions string        `json:"therapistSuggestions"`
}

// Validate checks the structural shape only; narrative content is opaque.
func (a *Analysis) Validate() error {
	var errs []error
	if a.SessionType != Clinical && a.SessionType != Emotional {
		errs = append(errs, fmt.Errorf("sessionType must be %q or %q", Clinical, Emotional))
	}
	for _, f := range []struct{ name, value string }{
		{"complaint", a.Complaint},
		{"analysisNarrative", a.AnalysisNarrative},
		{"patientSummary", a.PatientSummary},
		{"therapistSuggestions", a.TherapistSuggestions},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		}
	}
	if a.PairFindings == nil {
		errs = append(errs, errors.New("pairFindings is required"))
	}
	for i, f := range a.PairFindings {
		if strings.TrimSpace(f.PairLabel) == "" || strings.TrimSpace(f.LocationOrEmotion) == "" || strings.TrimSpace(f.PathogenOrMeaning) == "" {
			errs = append(errs, fmt.Errorf("pairFindings[%d] has empty fields", i))
		}
	}
	return errors.Join(errs...)
}

// SavedSession is an immutable, saved analysis.
type SavedSession struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"-"`
	// PatientID is a patient uuid or WalkInID.
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Analysis
	CreatedAt time.Time `json:"created_at"`
}

func (s *SavedSession) IsWalkIn() bool { return s.PatientID == WalkInID }

// AnalysisRequest is the intake form submitted by the therapist.
type AnalysisRequest struct {
	SessionType string `json:"session_type"`
	Complaint   string `json:"complaint"`
	PairsText   string `json:"pairs"`
}

// SaveRequest persists a previously returned analysis for a patient.
type SaveRequest struct {
	PatientID string   `json:"patient_id"`
	Analysis  Analysis `json:"analysis"`
}

// AnalystRequest is what an Analyst receives after validation.
type AnalystRequest struct {
	SessionType SessionType
	Complaint   string
	PairsText   string
	// Knowledge carries the caller's custom entries; defaults are built in.
	Knowledge []knowledge.Entry
}

// HasPairs reports whether the pairs text holds at least one non-blank line.
func (r AnalystRequest) HasPairs() bool {
	return strings.TrimSpace(r.PairsText) != ""
}
