package knowledge

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"biomagnet-assist/internal/identity"
	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/respond"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	entries, err := h.svc.List(r.Context(), owner)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, entries)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	entries, err := h.svc.Search(r.Context(), owner, r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, entries)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req EntryInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	e, err := h.svc.Add(r.Context(), owner, req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, e)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req EntryInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	e, err := h.svc.Update(r.Context(), owner, chi.URLParam(r, "id"), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, e)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	// Reserved entries are rejected before asking for confirmation.
	if IsDefaultID(id) {
		respond.Error(w, apierr.ReservedEntry(id))
		return
	}
	if !respond.Confirmed(r) {
		respond.Error(w, apierr.ConfirmationRequired("deleting a custom pair"))
		return
	}
	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	if !respond.Confirmed(r) {
		respond.Error(w, apierr.ConfirmationRequired("resetting the knowledge base"))
		return
	}
	if err := h.svc.Reset(r.Context(), owner); err != nil {
		respond.Error(w, err)
		return
	}
	entries, err := h.svc.List(r.Context(), owner)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, entries)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/knowledge", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/search", h.Search)
		r.Post("/reset", h.Reset)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}
