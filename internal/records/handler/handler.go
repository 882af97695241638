// Package handler exposes the records API. Every route runs through the
// permission gate so each attempt lands in the audit log.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	auditmodels "medgate/internal/audit/models"
	"medgate/internal/gate"
	"medgate/internal/records"
	"medgate/internal/transport/httpx"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

// Operation names used for rate limiting.
const (
	OpAddRecord   = "add_record"
	OpGetRecord   = "get_record"
	OpListRecords = "list_records"
)

type Handler struct {
	service *records.Service
	gate    *gate.Gate
	logger  *slog.Logger
}

func NewHandler(svc *records.Service, g *gate.Gate, logger *slog.Logger) *Handler {
	return &Handler{service: svc, gate: g, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.Post("/", h.add)
		r.Get("/{recordID}", h.get)
		r.Get("/patients/{principal}", h.listByPatient)
	})
}

type addRequest struct {
	Patient string `json:"patient"`
	Hash    string `json:"hash"`
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	actor := requestcontext.Actor(r.Context())

	var stored records.Record
	err := h.gate.Protected(r.Context(), gate.Request{
		Actor:   actor,
		Patient: id.Principal(req.Patient),
		Action:  auditmodels.ActionWrite,
	}, OpAddRecord, func(ctx context.Context) error {
		var opErr error
		stored, opErr = h.service.Add(ctx, records.Record{
			Patient:  id.Principal(req.Patient),
			Provider: actor,
			Hash:     req.Hash,
		})
		return opErr
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, stored)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseUint(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		httpx.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "record id must be a positive integer"))
		return
	}
	actor := requestcontext.Actor(r.Context())

	// The record's patient drives authorization, so peek at the metadata
	// first; for a missing record the gate still writes the NotFound entry.
	patient := actor
	if peeked, peekErr := h.service.Get(r.Context(), recordID); peekErr == nil {
		patient = peeked.Patient
	}

	rid := id.RecordID(recordID)
	var record records.Record
	err = h.gate.Protected(r.Context(), gate.Request{
		Actor:    actor,
		Patient:  patient,
		RecordID: &rid,
		Action:   auditmodels.ActionRead,
	}, OpGetRecord, func(ctx context.Context) error {
		var opErr error
		record, opErr = h.service.Get(ctx, rid)
		return opErr
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) listByPatient(w http.ResponseWriter, r *http.Request) {
	patient := id.Principal(chi.URLParam(r, "principal"))

	var list []records.Record
	err := h.gate.Protected(r.Context(), gate.Request{
		Actor:   requestcontext.Actor(r.Context()),
		Patient: patient,
		Action:  auditmodels.ActionQuery,
	}, OpListRecords, func(ctx context.Context) error {
		var opErr error
		list, opErr = h.service.ListByPatient(ctx, patient)
		return opErr
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"records": list})
}
