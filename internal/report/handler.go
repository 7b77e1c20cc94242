package report

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/respond"
	"biomagnet-assist/internal/session"
)

type SessionSource interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*session.SavedSession, error)
}

type Handler struct {
	svc      *Service
	sessions SessionSource
}

func NewHandler(svc *Service, sessions SessionSource) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	saved, _, err := h.load(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.svc.Summary(saved)))
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	saved, principal, err := h.load(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	data, err := h.svc.RenderPDF(saved, &principal.Profile)
	if err != nil {
		respond.Error(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(saved)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	saved, principal, err := h.load(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.Share(r.Context(), saved, &principal.Profile); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

func (h *Handler) load(r *http.Request) (*session.SavedSession, *identity.Principal, error) {
	principal, ok := identity.PrincipalFrom(r.Context())
	if !ok {
		return nil, nil, apierr.Unauthorized("not signed in")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, nil, apierr.NotFound("session")
	}
	saved, err := h.sessions.Get(r.Context(), principal.User.ID, id)
	if err != nil {
		return nil, nil, err
	}
	return saved, principal, nil
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/sessions/{id}/summary", h.Summary)
	r.Get("/sessions/{id}/report.pdf", h.PDF)
	r.Post("/sessions/{id}/share", h.Share)
}
