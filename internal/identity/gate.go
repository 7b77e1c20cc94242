package identity

import (
	"strings"

	"biomagnet-assist/internal/platform/apierr"
)

// Gate resolves access states. The admin identities come from configuration.
type Gate struct {
	admins map[string]struct{}
}

func NewGate(adminEmails []string) *Gate {
	g := &Gate{admins: make(map[string]struct{}, len(adminEmails))}
	for _, e := range adminEmails {
		if n := normalizeEmail(e); n != "" {
			g.admins[n] = struct{}{}
		}
	}
	return g
}

func (g *Gate) IsAdmin(email string) bool {
	_, ok := g.admins[normalizeEmail(email)]
	return ok
}

// State derives the access state. The stored flag is ignored for admins.
func (g *Gate) State(u *User, p *Profile) AccessState {
	switch {
	case u == nil:
		return Unauthenticated
	case g.IsAdmin(u.Email):
		return Admin
	case p != nil && p.IsAuthorized:
		return Authorized
	default:
		return Pending
	}
}

// Permits reports whether state may use the clinical modules.
func (g *Gate) Permits(state AccessState) bool {
	return state.Permitted()
}

// CheckToggle validates that actor may flip target's authorization flag.
func (g *Gate) CheckToggle(actor AccessState, target *User) error {
	if actor != Admin {
		return apierr.Forbidden(apierr.CodeForbidden, "only administrators can change authorization")
	}
	if g.IsAdmin(target.Email) {
		return apierr.Forbidden("admin_immutable", "administrator access cannot be changed")
	}
	return nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
