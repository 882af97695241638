// Package handler exposes the audit log's read API over HTTP. The log is
// written only through the permission gate, so there is no POST surface here.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"medgate/internal/audit/models"
	"medgate/internal/audit/service"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/recent", h.listRecent)
		r.Get("/range", h.listByTimeRange)
		r.Get("/entries/{entryID}", h.getByID)
		r.Get("/records/{recordID}", h.listByRecord)
		r.Get("/actors/{actor}", h.listByActor)
		r.Get("/patients/{patient}", h.listByPatient)
		r.Get("/actions/{action}", h.listByAction)
		r.Get("/results/{result}", h.listByResult)
	})
}

func (h *Handler) getByID(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseUint(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entry id must be a positive integer"))
		return
	}
	entry, err := h.service.GetByID(r.Context(), entryID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) listByRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseUint(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "record id must be a positive integer"))
		return
	}
	entries, err := h.service.ListByRecord(r.Context(), recordID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) listByActor(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListByActor(r.Context(), id.Principal(chi.URLParam(r, "actor")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) listByPatient(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListByPatient(r.Context(), id.Principal(chi.URLParam(r, "patient")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) listByAction(w http.ResponseWriter, r *http.Request) {
	action, err := models.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entries, err := h.service.ListByAction(r.Context(), action)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) listByResult(w http.ResponseWriter, r *http.Request) {
	result, err := models.ParseResult(chi.URLParam(r, "result"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entries, err := h.service.ListByResult(r.Context(), result)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) listByTimeRange(w http.ResponseWriter, r *http.Request) {
	start, err := parseUnix(r.URL.Query().Get("start"))
	if err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "start must be a unix timestamp"))
		return
	}
	end, err := parseUnix(r.URL.Query().Get("end"))
	if err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "end must be a unix timestamp"))
		return
	}
	entries, err := h.service.ListByTimeRange(r.Context(), models.TimeRange{Start: start, End: end})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) listRecent(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	entries, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

type entriesResponse struct {
	Entries []models.Entry `json:"entries"`
}

func parseUnix(raw string) (time.Time, error) {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
