// Package handler exposes the emergency access API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medgate/internal/emergency"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type Handler struct {
	service *emergency.Service
	logger  *slog.Logger
}

func NewHandler(svc *emergency.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/emergency", func(r chi.Router) {
		r.Post("/", h.grant)
		r.Post("/use", h.use)
		r.Post("/expire", h.expireSweep)
		r.Post("/{accessID}/revoke", h.revoke)
		r.Get("/check", h.check)
		r.Get("/patients/{principal}", h.listByPatient)
		r.Get("/{accessID}", h.get)
		r.Get("/{accessID}/trail", h.trail)
	})
}

type grantRequest struct {
	Patient         string   `json:"patient"`
	Condition       string   `json:"condition"`
	Attestation     string   `json:"attestation"`
	DurationSeconds uint64   `json:"duration_seconds"`
	Contacts        []string `json:"contacts"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	condition, err := emergency.ParseCondition(req.Condition)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	contacts := make([]id.Principal, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		contacts = append(contacts, id.Principal(c))
	}

	access, err := h.service.Grant(r.Context(),
		requestcontext.Actor(r.Context()), id.Principal(req.Patient),
		condition, req.Attestation, req.DurationSeconds, contacts)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, access)
}

type useRequest struct {
	Patient  string  `json:"patient"`
	RecordID *uint64 `json:"record_id,omitempty"`
}

func (h *Handler) use(w http.ResponseWriter, r *http.Request) {
	var req useRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	err := h.service.Use(r.Context(),
		requestcontext.Actor(r.Context()), id.Principal(req.Patient), req.RecordID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "accessed"})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	accessID, err := parseAccessID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), requestcontext.Actor(r.Context()), accessID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) expireSweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ExpireSweep(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"expired": count})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	patient := id.Principal(r.URL.Query().Get("patient"))
	requester := id.Principal(r.URL.Query().Get("requester"))
	if patient.IsZero() || requester.IsZero() {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "patient and requester are required"))
		return
	}
	access, err := h.service.CheckAccess(r.Context(), patient, requester)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if access == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"active": true, "access": access})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	accessID, err := parseAccessID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	access, err := h.service.Get(r.Context(), accessID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, access)
}

func (h *Handler) listByPatient(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListByPatient(r.Context(), id.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	accessID, err := parseAccessID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	trail, err := h.service.Trail(r.Context(), accessID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"trail": trail})
}

func parseAccessID(r *http.Request) (uint64, error) {
	accessID, err := strconv.ParseUint(chi.URLParam(r, "accessID"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "access id must be a positive integer")
	}
	return accessID, nil
}
