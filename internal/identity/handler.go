package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/respond"
)

const keepAliveInterval = 25 * time.Second

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	u, err := h.svc.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, u)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, res)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := h.svc.SignOut(r.Context(), p); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.ResendConfirmation(r.Context(), req.Email); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.ConfirmEmail(r.Context(), req.Token); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	respond.OK(w, p)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req ProfileInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	profile, err := h.svc.UpdateProfile(r.Context(), p, req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, profile)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	members, err := h.svc.ListMembers(r.Context(), p)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	respond.OK(w, members)
}

func (h *Handler) ToggleAuthorization(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, apierr.Validation("invalid user id"))
		return
	}
	m, err := h.svc.ToggleAuthorization(r.Context(), p, id)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, m)
}

// Events streams the caller's auth-state changes as server-sent events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, apierr.New(http.StatusInternalServerError, apierr.CodeInternal, fmt.Errorf("streaming not supported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := h.svc.Subscribe(r.Context(), p.User.ID)
	initial, _ := json.Marshal(Event{Type: EventSignedIn, UserID: p.User.ID, State: p.State, At: time.Now().UTC()})
	fmt.Fprintf(w, "event: state\ndata: %s\n\n", initial)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// RegisterRoutes mounts the auth, profile and admin routes.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/signin", h.SignIn)
		r.Post("/password-reset", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ResetPassword)
		r.Post("/confirm", h.ConfirmEmail)
		r.Post("/confirm/resend", h.ResendConfirmation)

		r.Group(func(r chi.Router) {
			r.Use(h.svc.Authenticate)
			r.Post("/signout", h.SignOut)
			r.Get("/session", h.CurrentSession)
		})
		r.With(h.svc.AuthenticateStream).Get("/events", h.Events)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.svc.Authenticate)
		r.Put("/profile", h.UpdateProfile)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/users", h.ListUsers)
			r.Post("/users/{id}/toggle", h.ToggleAuthorization)
		})
	})
}
