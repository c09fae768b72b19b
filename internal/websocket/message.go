package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	// Client to Server
	MessageTypeSubscribe   MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe MessageType = "UNSUBSCRIBE"
	MessageTypePing        MessageType = "PING"

	// Server to Client
	MessageTypeEvent        MessageType = "EVENT"
	MessageTypeSubscribed   MessageType = "SUBSCRIBED"
	MessageTypeUnsubscribed MessageType = "UNSUBSCRIBED"
	MessageTypePong         MessageType = "PONG"
	MessageTypeError        MessageType = "ERROR"
)

// Message is the envelope for every frame in both directions. Channel and
// Event are set on EVENT frames only.
type Message struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// NewEventMessage wraps a published event for delivery on channel.
func NewEventMessage(channel, event string, payload interface{}) (*Message, error) {
	msg, err := NewMessage(MessageTypeEvent, payload)
	if err != nil {
		return nil, err
	}
	msg.Channel = channel
	msg.Event = event
	return msg, nil
}

type ChannelPayload struct {
	Channel string `json:"channel"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
