package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/api"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

type mockSubmitter struct {
	mu       sync.Mutex
	received []events.Envelope
}

func (m *mockSubmitter) Submit(env events.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, env)
}

func (m *mockSubmitter) last() events.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received[len(m.received)-1]
}

func TestEmitHandler_HandleEmit(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		request        api.EmitRequest
		expectedStatus int
		checkEnvelope  func(*testing.T, events.Envelope)
	}{
		{
			name: "valid doctor command",
			request: api.EmitRequest{
				PatientID: "patient-1",
				EventType: string(events.DoctorCommand),
				Payload:   map[string]any{"command": "reschedule"},
			},
			expectedStatus: http.StatusAccepted,
			checkEnvelope: func(t *testing.T, env events.Envelope) {
				assert.Equal(t, "patient-1", env.PatientID)
				assert.Equal(t, events.DoctorCommand, env.EventType)
				assert.Equal(t, events.RolePatient, env.SenderRole)
				assert.NotEmpty(t, env.EventID)
			},
		},
		{
			name: "explicit sender role",
			request: api.EmitRequest{
				PatientID:  "patient-2",
				EventType:  string(events.Webhook),
				SenderID:   "helper-9",
				SenderRole: string(events.RoleHelper),
			},
			expectedStatus: http.StatusAccepted,
			checkEnvelope: func(t *testing.T, env events.Envelope) {
				assert.Equal(t, "helper-9", env.SenderID)
				assert.Equal(t, events.RoleHelper, env.SenderRole)
			},
		},
		{
			name: "missing patient_id",
			request: api.EmitRequest{
				EventType: string(events.Webhook),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing event_type",
			request: api.EmitRequest{
				PatientID: "patient-3",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unrecognised sender role",
			request: api.EmitRequest{
				PatientID:  "patient-4",
				EventType:  string(events.Webhook),
				SenderRole: "administrator",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{}
			handler := NewEmitHandler(sub, logger)

			body, err := json.Marshal(tt.request)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/gateway/emit", bytes.NewReader(body))
			r.Header.Set("Content-Type", "application/json")

			handler.HandleEmit(w, r)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusAccepted {
				require.Len(t, sub.received, 1)
				if tt.checkEnvelope != nil {
					tt.checkEnvelope(t, sub.last())
				}

				var resp Response
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.True(t, resp.Success)
			} else {
				assert.Empty(t, sub.received)
			}
		})
	}
}
