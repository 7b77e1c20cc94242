package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/apierr"
)

const (
	birthDateLayout = "2006-01-02"
	// SearchLimit caps autocomplete results.
	SearchLimit = 5
)

type Patient struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	BirthDate string    `json:"birth_date,omitempty"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPatient is the registration form. Patients are never edited afterwards.
type NewPatient struct {
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	BirthDate string `json:"birth_date"`
	Notes     string `json:"notes"`
}

func (n *NewPatient) normalize() error {
	n.Name = strings.TrimSpace(n.Name)
	n.Contact = strings.TrimSpace(n.Contact)
	n.BirthDate = strings.TrimSpace(n.BirthDate)
	n.Notes = strings.TrimSpace(n.Notes)

	if n.Name == "" {
		return apierr.Validation("patient name is required")
	}
	if n.BirthDate != "" {
		if _, err := time.Parse(birthDateLayout, n.BirthDate); err != nil {
			return apierr.Validation("birth date must be formatted as YYYY-MM-DD")
		}
	}
	return nil
}

// matches reports a case-insensitive substring hit on name or contact.
func (p *Patient) matches(folded string) bool {
	return strings.Contains(strings.ToLower(p.Name), folded) ||
		(p.Contact != "" && strings.Contains(strings.ToLower(p.Contact), folded))
}
