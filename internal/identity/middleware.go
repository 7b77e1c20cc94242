package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/respond"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the authenticated caller stored by Authenticate.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// OwnerFrom returns the caller's user id, the tenant of every clinical record.
func OwnerFrom(ctx context.Context) (uuid.UUID, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return uuid.Nil, apierr.Unauthorized("authentication required")
	}
	return p.User.ID, nil
}

// Authenticate resolves the bearer token from the Authorization header.
func (s *Service) Authenticate(next http.Handler) http.Handler {
	return s.authenticate(next, false)
}

// AuthenticateStream is Authenticate for the event stream. EventSource
// clients cannot set headers, so a token query parameter is accepted too.
func (s *Service) AuthenticateStream(next http.Handler) http.Handler {
	return s.authenticate(next, true)
}

func (s *Service) authenticate(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r, allowQuery)
		if token == "" {
			respond.Error(w, apierr.Unauthorized("missing bearer token"))
			return
		}
		p, err := s.CurrentSession(r.Context(), token)
		if err != nil {
			respond.Error(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAuthorized lets through authorized members and admins only.
func RequireAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			respond.Error(w, apierr.Unauthorized("authentication required"))
			return
		}
		if !p.State.Permitted() {
			respond.Error(w, apierr.Forbidden("pending_authorization", "account is awaiting administrator approval"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			respond.Error(w, apierr.Unauthorized("authentication required"))
			return
		}
		if p.State != Admin {
			respond.Error(w, apierr.Forbidden(apierr.CodeForbidden, "administrator access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return ""
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}
