package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shreya-uprety/medforce-gateway/api"
	"github.com/shreya-uprety/medforce-gateway/internal/authstore"
)

func setupTestStore(t *testing.T) *authstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s := authstore.New(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestAPIKeyHandler_HandleIssue(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid role", func(t *testing.T) {
		h := NewAPIKeyHandler(setupTestStore(t), logger)

		body, err := json.Marshal(api.IssueAPIKeyRequest{Label: "helper-app", Role: "helper"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/gateway/keys", bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")

		h.HandleIssue(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)

		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var key api.APIKeyResponse
		require.NoError(t, json.Unmarshal(data, &key))
		assert.NotEmpty(t, key.Token)
		assert.Equal(t, "helper", key.Role)
	})

	t.Run("unrecognised role", func(t *testing.T) {
		h := NewAPIKeyHandler(setupTestStore(t), logger)

		body, err := json.Marshal(api.IssueAPIKeyRequest{Label: "x", Role: "administrator"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/gateway/keys", bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")

		h.HandleIssue(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAPIKeyHandler_HandleList(t *testing.T) {
	logger := zap.NewNop()
	store := setupTestStore(t)
	h := NewAPIKeyHandler(store, logger)

	_, _, err := store.Issue(context.Background(), "gp-portal", "gp")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/gateway/keys", nil)
	h.HandleList(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var list api.APIKeyListResponse
	require.NoError(t, json.Unmarshal(data, &list))

	require.Len(t, list.Keys, 1)
	assert.Empty(t, list.Keys[0].Token, "list must never expose the plaintext token")
}

func TestAPIKeyHandler_HandleRevoke(t *testing.T) {
	logger := zap.NewNop()
	store := setupTestStore(t)
	h := NewAPIKeyHandler(store, logger)

	_, rec, err := store.Issue(context.Background(), "to-revoke", "patient")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodDelete, "/api/gateway/keys/1", nil)
		r.SetPathValue("id", "1")
		_ = rec

		h.HandleRevoke(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodDelete, "/api/gateway/keys/999", nil)
		r.SetPathValue("id", "999")

		h.HandleRevoke(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodDelete, "/api/gateway/keys/abc", nil)
		r.SetPathValue("id", "abc")

		h.HandleRevoke(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
