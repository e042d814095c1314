package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// WebSocketDispatcher delivers outbound messages to patients/helpers
// connected over a live WebSocket, keyed by the connection id a handshake
// handler assigned them (msg.ChannelID).
type WebSocketDispatcher struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn
	log   *zap.Logger
}

// NewWebSocketDispatcher returns an empty WebSocketDispatcher.
func NewWebSocketDispatcher(log *zap.Logger) *WebSocketDispatcher {
	return &WebSocketDispatcher{conns: make(map[string]*websocket.Conn), log: log}
}

// Register associates connID with an accepted connection.
func (d *WebSocketDispatcher) Register(connID string, c *websocket.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[connID] = c
}

// Unregister drops a connection, e.g. on close.
func (d *WebSocketDispatcher) Unregister(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, connID)
}

type wireMessage struct {
	PatientID string            `json:"patient_id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Send implements Dispatcher.
func (d *WebSocketDispatcher) Send(ctx context.Context, msg OutboundMessage) error {
	d.mu.RLock()
	conn, ok := d.conns[msg.ChannelID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket dispatcher: no connection for channel id %q", msg.ChannelID)
	}

	payload := wireMessage{PatientID: msg.PatientID, Text: msg.Text, Metadata: msg.Metadata}
	if err := wsjson.Write(ctx, conn, payload); err != nil {
		return fmt.Errorf("websocket dispatcher: write: %w", err)
	}
	return nil
}

// MarshalForTest exposes the wire format for test assertions without
// requiring a live connection.
func MarshalForTest(msg OutboundMessage) ([]byte, error) {
	return json.Marshal(wireMessage{PatientID: msg.PatientID, Text: msg.Text, Metadata: msg.Metadata})
}
