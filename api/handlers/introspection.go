package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/api"
	"github.com/shreya-uprety/medforce-gateway/gateway"
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gwerrors"
)

// gatewayIntrospector is the subset of gateway.Gateway the introspection
// handler needs, kept narrow so tests can stub it.
type gatewayIntrospector interface {
	Diary(ctx context.Context, patientID string) (*diary.Diary, error)
	RecentEvents(limit int) []gateway.EventLogEntry
	DeadLetters() []gateway.DLQEntry
	Replay(eventID string) error
}

// IntrospectionHandler serves the Gateway's read/operate surface over a
// patient's diary, the bounded event log, and the dead-letter queue
// (spec.md §7).
type IntrospectionHandler struct {
	gw     gatewayIntrospector
	logger *zap.Logger
}

// NewIntrospectionHandler builds an IntrospectionHandler around gw.
func NewIntrospectionHandler(gw gatewayIntrospector, logger *zap.Logger) *IntrospectionHandler {
	return &IntrospectionHandler{gw: gw, logger: logger}
}

// HandleGetDiary serves GET /api/gateway/diary/{patient_id}.
// @Summary Fetch a patient's diary
// @Tags gateway
// @Produce json
// @Success 200 {object} diary.Diary
// @Failure 404 {object} Response
// @Router /api/gateway/diary/{patient_id} [get]
func (h *IntrospectionHandler) HandleGetDiary(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("patient_id")
	if patientID == "" {
		WriteError(w, gwerrors.New(gwerrors.CodeValidationFailed, "patient_id is required"), h.logger)
		return
	}

	d, err := h.gw.Diary(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, diary.ErrNotFound) {
			WriteError(w, gwerrors.New(gwerrors.CodeNotFound, "no diary for this patient"), h.logger)
			return
		}
		WriteError(w, gwerrors.New(gwerrors.CodeStoreUnavailable, "failed to load diary").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, d)
}

// HandleGetEvents serves GET /api/gateway/events/{patient_id}: the
// bounded event log, filtered to one patient. limit caps how many
// recent entries the Gateway scans before filtering (default 200).
// @Summary Fetch a patient's recent event-log entries
// @Tags gateway
// @Produce json
// @Success 200 {object} api.EventLogResponse
// @Router /api/gateway/events/{patient_id} [get]
func (h *IntrospectionHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("patient_id")
	if patientID == "" {
		WriteError(w, gwerrors.New(gwerrors.CodeValidationFailed, "patient_id is required"), h.logger)
		return
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries := h.gw.RecentEvents(limit)
	resp := api.EventLogResponse{Events: make([]api.EventLogEntryResponse, 0)}
	for _, e := range entries {
		if e.PatientID != patientID {
			continue
		}
		resp.Events = append(resp.Events, api.EventLogEntryResponse{
			EventID:     e.EventID,
			EventType:   string(e.EventType),
			PatientID:   e.PatientID,
			Target:      e.Target,
			Outcome:     e.Outcome,
			Detail:      e.Detail,
			PhaseBefore: e.PhaseBefore,
			PhaseAfter:  e.PhaseAfter,
			Timestamp:   e.Timestamp,
		})
	}

	WriteSuccess(w, resp)
}

// HandleListDLQ serves GET /api/gateway/dlq: every event currently
// dead-lettered, across all patients.
// @Summary List dead-lettered events
// @Tags gateway
// @Produce json
// @Success 200 {object} api.DLQResponse
// @Router /api/gateway/dlq [get]
func (h *IntrospectionHandler) HandleListDLQ(w http.ResponseWriter, r *http.Request) {
	entries := h.gw.DeadLetters()
	resp := api.DLQResponse{Entries: make([]api.DLQEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.DLQEntryResponse{
			EventID:   e.Event.EventID,
			EventType: string(e.Event.EventType),
			PatientID: e.Event.PatientID,
			Target:    e.Target,
			Error:     e.Err,
			Timestamp: e.Timestamp,
		})
	}

	WriteSuccess(w, resp)
}

// HandleReplayDLQ serves POST /api/gateway/dlq/{event_id}/replay:
// resubmits a dead-lettered event for reprocessing, starting from a
// fresh chain depth of 0.
// @Summary Replay a dead-lettered event
// @Tags gateway
// @Produce json
// @Success 200 {object} api.ReplayResponse
// @Failure 404 {object} Response
// @Router /api/gateway/dlq/{event_id}/replay [post]
func (h *IntrospectionHandler) HandleReplayDLQ(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")
	if eventID == "" {
		WriteError(w, gwerrors.New(gwerrors.CodeValidationFailed, "event_id is required"), h.logger)
		return
	}

	if err := h.gw.Replay(eventID); err != nil {
		var gwErr *gwerrors.Error
		if errors.As(err, &gwErr) {
			WriteError(w, gwErr, h.logger)
			return
		}
		WriteError(w, gwerrors.New(gwerrors.CodeInternal, "replay failed").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, api.ReplayResponse{EventID: eventID, Status: "resubmitted"})
}
