// Package handler exposes the ordinary access-grant API. Grant and revoke
// run through the permission gate so every change to the grant table is
// rate limited and audited.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medgate/internal/access"
	auditmodels "medgate/internal/audit/models"
	"medgate/internal/gate"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

// Operation names used for rate limiting.
const (
	OpGrantAccess  = "grant_access"
	OpRevokeAccess = "revoke_access"
)

type Handler struct {
	service *access.Service
	gate    *gate.Gate
	logger  *slog.Logger
}

func NewHandler(svc *access.Service, g *gate.Gate, logger *slog.Logger) *Handler {
	return &Handler{service: svc, gate: g, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/access", func(r chi.Router) {
		r.Post("/grants", h.grant)
		r.Post("/revoke", h.revoke)
		r.Get("/check", h.check)
		r.Get("/patients/{principal}", h.listByPatient)
	})
}

type grantRequest struct {
	Patient         string `json:"patient"`
	Grantee         string `json:"grantee"`
	Level           string `json:"level"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	level, err := access.ParseLevel(req.Level)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	actor := requestcontext.Actor(r.Context())

	err = h.gate.Protected(r.Context(), gate.Request{
		Actor:   actor,
		Patient: id.Principal(req.Patient),
		Action:  auditmodels.ActionGrantAccess,
	}, OpGrantAccess, func(ctx context.Context) error {
		return h.service.Grant(ctx, actor,
			id.Principal(req.Patient), id.Principal(req.Grantee), level, req.DurationSeconds)
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

type revokeRequest struct {
	Patient string `json:"patient"`
	Grantee string `json:"grantee"`
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	actor := requestcontext.Actor(r.Context())

	err := h.gate.Protected(r.Context(), gate.Request{
		Actor:   actor,
		Patient: id.Principal(req.Patient),
		Action:  auditmodels.ActionRevokeAccess,
	}, OpRevokeAccess, func(ctx context.Context) error {
		return h.service.Revoke(ctx, actor, id.Principal(req.Patient), id.Principal(req.Grantee))
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	patient := id.Principal(r.URL.Query().Get("patient"))
	grantee := id.Principal(r.URL.Query().Get("grantee"))
	if patient.IsZero() || grantee.IsZero() {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "patient and grantee are required"))
		return
	}
	level, err := h.service.Check(r.Context(), patient, grantee)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"level": level.String()})
}

func (h *Handler) listByPatient(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListByPatient(r.Context(), id.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"grants": grants})
}
