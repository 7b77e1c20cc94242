package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/platform/respond"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req AnalysisRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	analysis, err := h.svc.Analyze(r.Context(), owner, req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, analysis)
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req SaveRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	saved, err := h.svc.Save(r.Context(), owner, req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, saved)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	sessions, err := h.svc.List(r.Context(), owner, r.URL.Query().Get("patient_id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	if sessions == nil {
		sessions = []SavedSession{}
	}
	respond.OK(w, sessions)
}

// RegisterRoutes registers flat routes so report endpoints can share the
// /sessions prefix.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/analysis", h.Analyze)
	r.Get("/sessions", h.List)
	r.Post("/sessions", h.Save)
}
