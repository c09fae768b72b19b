package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test WebSocket client
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *websocket.Message
	errors   chan error
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient dials url and waits for the server to answer a PING, so the
// connection is registered with the hub when it returns.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *websocket.Message, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	client.Ping(2 * time.Second)
	return client
}

// readPump reads messages from the WebSocket connection
func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.errors <- err
			continue
		}

		select {
		case c.messages <- &msg:
		case <-c.done:
			return
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}

func (c *WSClient) send(msgType websocket.MessageType, payload interface{}) {
	c.t.Helper()

	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		c.t.Fatalf("failed to build message: %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("failed to marshal message: %v", err)
	}

	c.mu.Lock()
	err = c.conn.WriteMessage(gorillaWS.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		c.t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// Ping round-trips a PING so that earlier frames are known to be processed.
func (c *WSClient) Ping(timeout time.Duration) {
	c.t.Helper()
	c.send(websocket.MessageTypePing, struct{}{})
	c.ExpectMessage(websocket.MessageTypePong, timeout)
}

// Subscribe asks for channel and waits for the server's answer. It returns
// the error payload when the subscription was refused.
func (c *WSClient) Subscribe(channel string, timeout time.Duration) *websocket.ErrorPayload {
	c.t.Helper()

	c.send(websocket.MessageTypeSubscribe, websocket.ChannelPayload{Channel: channel})

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				c.t.Fatalf("connection closed while subscribing to %s", channel)
			}
			switch msg.Type {
			case websocket.MessageTypeSubscribed:
				return nil
			case websocket.MessageTypeError:
				var payload websocket.ErrorPayload
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					c.t.Fatalf("failed to decode error payload: %v", err)
				}
				return &payload
			}
		case err := <-c.errors:
			c.t.Fatalf("error while subscribing to %s: %v", channel, err)
		case <-deadline:
			c.t.Fatalf("timeout subscribing to %s", channel)
		}
	}
}

func (c *WSClient) Unsubscribe(channel string, timeout time.Duration) {
	c.t.Helper()
	c.send(websocket.MessageTypeUnsubscribe, websocket.ChannelPayload{Channel: channel})
	c.ExpectMessage(websocket.MessageTypeUnsubscribed, timeout)
}

// ExpectMessage waits for a message of the specified type, skipping others
func (c *WSClient) ExpectMessage(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				c.t.Fatalf("connection closed while waiting for %s", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case err := <-c.errors:
			c.t.Fatalf("error while waiting for %s: %v", msgType, err)
		case <-deadline:
			c.t.Fatalf("timeout waiting for message type %s", msgType)
		}
	}
}

// ExpectEvent waits for a named event on channel and decodes its payload
// into v when v is not nil.
func (c *WSClient) ExpectEvent(channel, event string, v interface{}, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				c.t.Fatalf("connection closed while waiting for %s on %s", event, channel)
			}
			if msg.Type != websocket.MessageTypeEvent || msg.Channel != channel || msg.Event != event {
				continue
			}
			if v != nil {
				if err := json.Unmarshal(msg.Payload, v); err != nil {
					c.t.Fatalf("failed to decode %s payload: %v", event, err)
				}
			}
			return msg
		case err := <-c.errors:
			c.t.Fatalf("error while waiting for %s: %v", event, err)
		case <-deadline:
			c.t.Fatalf("timeout waiting for %s on %s", event, channel)
		}
	}
}

// ExpectNoEvent fails if any EVENT frame arrives within timeout
func (c *WSClient) ExpectNoEvent(timeout time.Duration) {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg != nil && msg.Type == websocket.MessageTypeEvent {
				c.t.Fatalf("unexpected event %s on %s", msg.Event, msg.Channel)
			}
		case <-deadline:
			return
		}
	}
}
