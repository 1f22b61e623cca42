package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"optin-backend/internal/notify"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket message types
const (
	WSTypeNotification   = "notification"
	WSTypeMatchesChanged = "matches_changed"
	WSTypePong           = "pong"
	WSTypeError          = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type         string          `json:"type"`
	Timestamp    int64           `json:"timestamp,omitempty"`
	Message      string          `json:"message,omitempty"`
	Notification *notify.Payload `json:"notification,omitempty"`
}

// writeWait bounds a single write to a peer
const writeWait = 10 * time.Second

// wsConn is the part of *websocket.Conn the hub writes to
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient serializes writes to one connection
type wsClient struct {
	conn    wsConn
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections. It delivers notifications to online
// users and tells them when their matches changed.
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
	}
}

var (
	_ notify.Sender = (*WSHub)(nil)
	_ MatchObserver = (*WSHub)(nil)
)

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.register(userID, conn)
}

func (h *WSHub) register(userID string, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
	}

	h.connections[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes conn for a user. A connection that was already replaced
// by a newer one is left alone.
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.unregister(userID, conn)
}

func (h *WSHub) unregister(userID string, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, exists := h.connections[userID]
	if !exists || c.conn != conn {
		return
	}
	c.conn.Close()
	delete(h.connections, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.write(data); err != nil {
		h.unregister(userID, c.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// Send delivers p to the users that are online. Offline users are skipped.
func (h *WSHub) Send(ctx context.Context, userIDs []string, p notify.Payload) error {
	var errs []error
	for _, userID := range userIDs {
		if !h.IsOnline(userID) {
			continue
		}
		payload := p
		if err := h.SendToUser(userID, WSMessage{Type: WSTypeNotification, Notification: &payload}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MatchesChanged asks online users to reload their matches
func (h *WSHub) MatchesChanged(userIDs []string) {
	for _, userID := range userIDs {
		if !h.IsOnline(userID) {
			continue
		}
		if err := h.SendToUser(userID, WSMessage{Type: WSTypeMatchesChanged}); err != nil {
			log.Error().
				Err(err).
				Str("user_id", userID).
				Msg("Failed to notify matches change")
		}
	}
}
