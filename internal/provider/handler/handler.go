// Package handler exposes the provider registry's API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medgate/internal/provider"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type Handler struct {
	service *provider.Service
	logger  *slog.Logger
}

func NewHandler(svc *provider.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/providers", func(r chi.Router) {
		r.Post("/", h.register)
		r.Post("/{principal}/verify", h.verify)
		r.Get("/{principal}", h.get)
	})
}

type registerRequest struct {
	Principal string `json:"principal"`
	Name      string `json:"name"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	err := h.service.Register(r.Context(), requestcontext.Actor(r.Context()), id.Principal(req.Principal), req.Name)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"principal": req.Principal, "status": provider.StatusPending.String()})
}

type verifyRequest struct {
	Status string `json:"status"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := provider.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	principal := id.Principal(chi.URLParam(r, "principal"))
	if err := h.service.Verify(r.Context(), requestcontext.Actor(r.Context()), principal, status); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"principal": principal.String(), "status": status.String()})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), id.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}
