// Package handler exposes the role registry's API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medgate/internal/identity"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type Handler struct {
	service *identity.Service
	logger  *slog.Logger
}

func NewHandler(svc *identity.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/identity", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Get("/{principal}/role", h.roleOf)
	})
}

type registerRequest struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	err = h.service.Register(r.Context(), requestcontext.Actor(r.Context()), id.Principal(req.Principal), role)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"principal": req.Principal, "role": role.String()})
}

func (h *Handler) roleOf(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.RoleOf(r.Context(), id.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"role": role.String()})
}
