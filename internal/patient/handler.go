package patient

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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
	patients, err := h.svc.List(r.Context(), owner)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if patients == nil {
		patients = []Patient{}
	}
	respond.OK(w, patients)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	patients, err := h.svc.Search(r.Context(), owner, r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, patients)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req NewPatient
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	p, err := h.svc.Add(r.Context(), owner, req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := identity.OwnerFrom(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	if !respond.Confirmed(r) {
		respond.Error(w, apierr.ConfirmationRequired("deleting a patient"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, apierr.NotFound("patient"))
		return
	}
	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/patients", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/search", h.Search)
		r.Delete("/{id}", h.Delete)
	})
}
