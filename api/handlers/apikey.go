package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/api"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/gwerrors"
	"github.com/shreya-uprety/medforce-gateway/internal/authstore"
)

// APIKeyHandler administers the ingress bearer tokens backing the
// Gateway's API-key authentication (spec.md §6 collaborator contract;
// see internal/authstore).
type APIKeyHandler struct {
	store  *authstore.Store
	logger *zap.Logger
}

// NewAPIKeyHandler builds an APIKeyHandler around store.
func NewAPIKeyHandler(store *authstore.Store, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{store: store, logger: logger}
}

func toAPIKeyResponse(k authstore.APIKey, token string) api.APIKeyResponse {
	return api.APIKeyResponse{
		ID:         k.ID,
		Label:      k.Label,
		Role:       k.Role,
		Enabled:    k.Enabled,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
		RevokedAt:  k.RevokedAt,
		Token:      token,
	}
}

// HandleIssue serves POST /api/gateway/keys: mints a new bearer token
// for role and returns its plaintext value exactly once.
// @Summary Issue an API key
// @Tags gateway
// @Accept json
// @Produce json
// @Param request body api.IssueAPIKeyRequest true "key to issue"
// @Success 201 {object} api.APIKeyResponse
// @Router /api/gateway/keys [post]
func (h *APIKeyHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.IssueAPIKeyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	role := events.SenderRole(req.Role)
	switch role {
	case events.RolePatient, events.RoleHelper, events.RoleGP, events.RoleSystem, events.RoleAgent:
	default:
		WriteError(w, gwerrors.New(gwerrors.CodeValidationFailed, "role is not a recognised sender role"), h.logger)
		return
	}

	token, rec, err := h.store.Issue(r.Context(), req.Label, role)
	if err != nil {
		WriteError(w, gwerrors.New(gwerrors.CodeStoreUnavailable, "failed to issue API key").WithCause(err), h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    toAPIKeyResponse(*rec, token),
	})
}

// HandleList serves GET /api/gateway/keys: every issued key, newest
// first, never including the plaintext token.
// @Summary List API keys
// @Tags gateway
// @Produce json
// @Success 200 {object} api.APIKeyListResponse
// @Router /api/gateway/keys [get]
func (h *APIKeyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.List(r.Context())
	if err != nil {
		WriteError(w, gwerrors.New(gwerrors.CodeStoreUnavailable, "failed to list API keys").WithCause(err), h.logger)
		return
	}

	resp := api.APIKeyListResponse{Keys: make([]api.APIKeyResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Keys = append(resp.Keys, toAPIKeyResponse(rec, ""))
	}

	WriteSuccess(w, resp)
}

// HandleRevoke serves DELETE /api/gateway/keys/{id}: disables a key
// immediately. An unknown or already-revoked id gets 404.
// @Summary Revoke an API key
// @Tags gateway
// @Produce json
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/gateway/keys/{id} [delete]
func (h *APIKeyHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		WriteError(w, gwerrors.New(gwerrors.CodeValidationFailed, "invalid key id"), h.logger)
		return
	}

	if err := h.store.Revoke(r.Context(), uint(id)); err != nil {
		if errors.Is(err, authstore.ErrNotFound) {
			WriteError(w, gwerrors.New(gwerrors.CodeNotFound, "no such API key"), h.logger)
			return
		}
		WriteError(w, gwerrors.New(gwerrors.CodeStoreUnavailable, "failed to revoke API key").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"message": "API key revoked"})
}
