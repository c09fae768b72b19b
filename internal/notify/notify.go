// Package notify fans real-time events out to subscribed clients.
//
// Delivery is best-effort: a publish reaches whoever is connected at that
// moment, at most once. Clients that must not miss chat messages poll the
// message history with a since cursor.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dom/rally-league/internal/metrics"
	"github.com/google/uuid"
)

const (
	EventRequestAccepted  = "request-accepted"
	EventRequestRejected  = "request-rejected"
	EventChatMessage      = "chat-message"
	EventPartyMemberLeft  = "party-member-left"
	EventPartyDisbanded   = "party-disbanded"
	defaultPublishTimeout = 3 * time.Second
)

// UserChannel is the private channel of a single user.
func UserChannel(userID uuid.UUID) string {
	return "user-" + userID.String()
}

// PartyChannel is shared by the members of a party.
func PartyChannel(partyID uuid.UUID) string {
	return "party-" + partyID.String()
}

// Relay delivers an event to the subscribers of a channel.
type Relay interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
}

// Evictor ends live subscriptions once access to a channel is revoked.
// Publishing alone cannot do this: a subscriber stays on a channel until it
// disconnects or is evicted.
type Evictor interface {
	Evict(channel string, userID uuid.UUID)
	CloseChannel(channel string)
}

// Multi publishes to every relay and joins their errors.
type Multi []Relay

func (m Multi) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	var errs []error
	for _, r := range m {
		if err := r.Publish(ctx, channel, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notifier wraps a Relay so publish failures are logged and counted but never
// surface to the caller. State changes are committed before Notify runs.
type Notifier struct {
	relay   Relay
	logger  *slog.Logger
	timeout time.Duration
}

func NewNotifier(relay Relay, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{relay: relay, logger: logger, timeout: defaultPublishTimeout}
}

func (n *Notifier) Notify(ctx context.Context, channel, event string, payload interface{}) {
	if n == nil || n.relay == nil {
		return
	}

	// The request may finish before the relay does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	err := n.relay.Publish(ctx, channel, event, payload)
	metrics.RecordNotification(event, err)
	if err != nil {
		n.logger.Warn("notification publish failed",
			"channel", channel,
			"event", event,
			"error", err,
		)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, string, string, interface{}) error { return nil }
