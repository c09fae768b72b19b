package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "rally."

// Envelope is the wire format of an event on the NATS bus.
type Envelope struct {
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Subject maps a channel to its NATS subject.
func Subject(channel string) string {
	return subjectPrefix + channel
}

// NATSRelay publishes events on core NATS so other service instances and
// consumers can forward them to their own connected clients.
type NATSRelay struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewNATSRelay(url string, logger *slog.Logger) (*NATSRelay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("rally-league"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSRelay{conn: conn, logger: logger}, nil
}

func (r *NATSRelay) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Envelope{
		Channel:   channel,
		Event:     event,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return r.conn.Publish(Subject(channel), data)
}

// Subscribe delivers every envelope published on channel. Passing "*"
// receives every channel.
func (r *NATSRelay) Subscribe(channel string, fn func(Envelope)) (*nats.Subscription, error) {
	return r.conn.Subscribe(Subject(channel), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			r.logger.Warn("dropping malformed nats envelope", "subject", msg.Subject, "error", err)
			return
		}
		fn(env)
	})
}

// Flush waits until the server has processed everything published so far.
func (r *NATSRelay) Flush() error {
	return r.conn.Flush()
}

func (r *NATSRelay) Close() {
	r.conn.Drain()
}
