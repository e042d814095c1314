package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/api"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/gwerrors"
	"github.com/shreya-uprety/medforce-gateway/payload"
)

// gatewaySubmitter is the subset of gateway.Gateway the emit handler
// needs: enqueue an envelope without blocking for the pipeline to run.
type gatewaySubmitter interface {
	Submit(env events.Envelope)
}

// EmitHandler accepts inbound events onto the Gateway's per-patient
// queue (spec.md §4.3): POST /api/gateway/emit.
type EmitHandler struct {
	gw     gatewaySubmitter
	logger *zap.Logger
}

// NewEmitHandler builds an EmitHandler around gw.
func NewEmitHandler(gw gatewaySubmitter, logger *zap.Logger) *EmitHandler {
	return &EmitHandler{gw: gw, logger: logger}
}

// HandleEmit serves POST /api/gateway/emit. The request is translated
// into an events.Envelope and enqueued; the handler returns as soon as
// the event is accepted onto the queue, not after the pipeline runs.
// @Summary Emit an event
// @Description Submit an event onto a patient's processing queue
// @Tags gateway
// @Accept json
// @Produce json
// @Param request body api.EmitRequest true "event to submit"
// @Success 202 {object} api.EmitResponse
// @Failure 400 {object} Response
// @Router /api/gateway/emit [post]
func (h *EmitHandler) HandleEmit(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.EmitRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.validateEmitRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	env := events.NewExternal(events.Type(req.EventType), req.PatientID, payload.FromMap(req.Payload),
		events.WithCorrelationID(req.CorrelationID))

	senderRole := events.RolePatient
	if req.SenderRole != "" {
		senderRole = events.SenderRole(req.SenderRole)
	}
	senderID := req.SenderID
	if senderID == "" {
		senderID = "PATIENT"
	}
	env.SenderID = senderID
	env.SenderRole = senderRole

	h.gw.Submit(env)

	WriteJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data: api.EmitResponse{
			EventID: env.EventID,
			Status:  "accepted",
		},
	})
}

func (h *EmitHandler) validateEmitRequest(req *api.EmitRequest) *gwerrors.Error {
	if req.PatientID == "" {
		return gwerrors.New(gwerrors.CodeValidationFailed, "patient_id is required")
	}
	if req.EventType == "" {
		return gwerrors.New(gwerrors.CodeValidationFailed, "event_type is required")
	}
	if req.SenderRole != "" {
		switch events.SenderRole(req.SenderRole) {
		case events.RolePatient, events.RoleHelper, events.RoleGP, events.RoleSystem, events.RoleAgent:
		default:
			return gwerrors.New(gwerrors.CodeValidationFailed, "sender_role is not a recognised role")
		}
	}
	return nil
}
