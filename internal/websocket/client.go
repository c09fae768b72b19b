package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   uuid.UUID
	channels map[string]bool // guarded by hub.mu
	mu       sync.Mutex
	closed   bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		channels: make(map[string]bool),
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "user_id", c.userID, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "Message is not valid JSON")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		var payload ChannelPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Channel == "" {
			c.sendError("INVALID_PAYLOAD", "Invalid subscribe payload")
			return
		}
		if err := c.hub.Subscribe(context.Background(), c, payload.Channel); err != nil {
			switch {
			case errors.Is(err, ErrForbidden):
				c.sendError("FORBIDDEN", "Not allowed to subscribe to this channel")
			case errors.Is(err, ErrUnknownChannel):
				c.sendError("UNKNOWN_CHANNEL", "Unknown channel")
			default:
				c.hub.logger.Error("subscribe failed", "user_id", c.userID, "channel", payload.Channel, "error", err)
				c.sendError("INTERNAL", "Could not subscribe")
			}
			return
		}
		c.reply(MessageTypeSubscribed, payload)

	case MessageTypeUnsubscribe:
		var payload ChannelPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Channel == "" {
			c.sendError("INVALID_PAYLOAD", "Invalid unsubscribe payload")
			return
		}
		c.hub.Unsubscribe(c, payload.Channel)
		c.reply(MessageTypeUnsubscribed, payload)

	case MessageTypePing:
		c.reply(MessageTypePong, struct{}{})

	default:
		c.sendError("UNKNOWN_MESSAGE_TYPE", "Unknown message type")
	}
}

func (c *Client) reply(msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	c.Send(msg)
}

func (c *Client) sendError(code, message string) {
	c.reply(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", "error", err)
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close closes the send channel, which makes WritePump close the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
