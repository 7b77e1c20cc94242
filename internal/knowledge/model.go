package knowledge

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/apierr"
)

// SearchLimit caps autocomplete results.
const SearchLimit = 8

const customPrefix = "C"

// Entry is one named pair of the knowledge base. Default entries are
// compiled in and immutable; custom entries belong to one owner.
type Entry struct {
	ID          string    `json:"id"`
	OwnerID     uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// EntryInput is the editable part of a custom entry.
type EntryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (in *EntryInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return apierr.Validation("pair name is required")
	}
	return nil
}

func newCustomID() string {
	return customPrefix + uuid.NewString()
}

// foldName is the deduplication key: trimmed and case-folded.
func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
