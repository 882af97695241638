// Package handler exposes the rate limiter's admin and status API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medgate/internal/ratelimit/models"
	"medgate/internal/ratelimit/service"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/ratelimit", func(r chi.Router) {
		r.Put("/configs/{operation}", h.setConfig)
		r.Get("/configs", h.allConfigs)
		r.Get("/configs/{operation}", h.getConfig)
		r.Put("/bypass/{principal}", h.setBypass)
		r.Get("/bypass/{principal}", h.getBypass)
		r.Get("/status/{principal}/{operation}", h.getStatus)
	})
}

type setConfigRequest struct {
	MaxRequests   uint32 `json:"max_requests"`
	WindowSeconds uint64 `json:"window_seconds"`
}

func (h *Handler) setConfig(w http.ResponseWriter, r *http.Request) {
	var req setConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cfg := models.Config{
		Operation:     chi.URLParam(r, "operation"),
		MaxRequests:   req.MaxRequests,
		WindowSeconds: req.WindowSeconds,
	}
	if err := h.service.SetConfig(r.Context(), requestcontext.Actor(r.Context()), cfg); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) allConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.AllConfigs(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string][]models.Config{"configs": configs})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfig(r.Context(), chi.URLParam(r, "operation"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

type setBypassRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setBypass(w http.ResponseWriter, r *http.Request) {
	var req setBypassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	principal := id.Principal(chi.URLParam(r, "principal"))
	if err := h.service.SetBypass(r.Context(), requestcontext.Actor(r.Context()), principal, req.Enabled); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"principal": principal, "enabled": req.Enabled})
}

func (h *Handler) getBypass(w http.ResponseWriter, r *http.Request) {
	principal := id.Principal(chi.URLParam(r, "principal"))
	enabled, err := h.service.HasBypass(r.Context(), principal)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"principal": principal, "enabled": enabled})
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context(),
		id.Principal(chi.URLParam(r, "principal")), chi.URLParam(r, "operation"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, status)
}
