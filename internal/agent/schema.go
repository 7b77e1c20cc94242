package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"biomagnet-assist/internal/session"
)

func responseSchema() *genai.Schema {
	str := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sessionType": {
				Type: genai.TypeString,
				Enum: []string{string(session.Clinical), string(session.Emotional)},
			},
			"complaint":         str(),
			"analysisNarrative": str(),
			"pairFindings": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"pairLabel":         str(),
						"locationOrEmotion": str(),
						"pathogenOrMeaning": str(),
					},
					Required:         []string{"pairLabel", "locationOrEmotion", "pathogenOrMeaning"},
					PropertyOrdering: []string{"pairLabel", "locationOrEmotion", "pathogenOrMeaning"},
				},
			},
			"patientSummary":       str(),
			"therapistSuggestions": str(),
		},
		Required: []string{
			"sessionType", "complaint", "analysisNarrative",
			"pairFindings", "patientSummary", "therapistSuggestions",
		},
		PropertyOrdering: []string{
			"sessionType", "complaint", "analysisNarrative",
			"pairFindings", "patientSummary", "therapistSuggestions",
		},
	}
}

// Wire shapes use pointers so absent and null fields are distinguishable
// from empty ones.
type wireFinding struct {
	PairLabel         *string `json:"pairLabel"`
	LocationOrEmotion *string `json:"locationOrEmotion"`
	PathogenOrMeaning *string `json:"pathogenOrMeaning"`
}

type wireAnalysis struct {
	SessionType          *string         `json:"sessionType"`
	Complaint            *string         `json:"complaint"`
	AnalysisNarrative    *string         `json:"analysisNarrative"`
	PairFindings         *[]*wireFinding `json:"pairFindings"`
	PatientSummary       *string         `json:"patientSummary"`
	TherapistSuggestions *string         `json:"therapistSuggestions"`
}

// Decode parses a model response into an Analysis. Any deviation from the
// response shape is an error; there is no partial result.
func Decode(raw string, req session.AnalystRequest) (*session.Analysis, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, errors.New("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var w wireAnalysis
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after response object")
	}

	var missing []string
	field := func(name string, v *string) string {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, name)
			return ""
		}
		return *v
	}
	a := &session.Analysis{
		SessionType:          session.SessionType(field("sessionType", w.SessionType)),
		Complaint:            field("complaint", w.Complaint),
		AnalysisNarrative:    field("analysisNarrative", w.AnalysisNarrative),
		PatientSummary:       field("patientSummary", w.PatientSummary),
		TherapistSuggestions: field("therapistSuggestions", w.TherapistSuggestions),
	}
	if w.PairFindings == nil {
		missing = append(missing, "pairFindings")
	} else {
		a.PairFindings = make([]session.PairFinding, 0, len(*w.PairFindings))
		for i, f := range *w.PairFindings {
			if f == nil {
				return nil, fmt.Errorf("pairFindings[%d] is null", i)
			}
			a.PairFindings = append(a.PairFindings, session.PairFinding{
				PairLabel:         field(fmt.Sprintf("pairFindings[%d].pairLabel", i), f.PairLabel),
				LocationOrEmotion: field(fmt.Sprintf("pairFindings[%d].locationOrEmotion", i), f.LocationOrEmotion),
				PathogenOrMeaning: field(fmt.Sprintf("pairFindings[%d].pathogenOrMeaning", i), f.PathogenOrMeaning),
			})
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing or empty fields: %s", strings.Join(missing, ", "))
	}

	if a.SessionType != req.SessionType {
		return nil, fmt.Errorf("sessionType %q does not match requested %q", a.SessionType, req.SessionType)
	}
	if len(a.PairFindings) == 0 && req.HasPairs() {
		return nil, errors.New("pairFindings is empty for a non-empty pairs list")
	}
	return a, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
