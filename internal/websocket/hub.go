package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dom/rally-league/internal/notify"
	"github.com/google/uuid"
)

const (
	membershipCheckTimeout = 3 * time.Second
	maxSubscribeAttempts   = 3
)

var (
	ErrHubStopped     = errors.New("hub is stopped")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrForbidden      = errors.New("not allowed to subscribe to this channel")
	errSubscribeRaced = errors.New("channel access kept changing during subscribe")
)

// MembershipChecker decides whether a user may listen on a party channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, partyID, userID uuid.UUID) (bool, error)
}

// Hub tracks connected clients and the channels they listen on. It is the
// in-process notify.Relay: Publish writes to every subscriber's send buffer
// and drops the frame for clients whose buffer is full.
type Hub struct {
	clients    map[*Client]bool
	channels   map[string]map[*Client]bool
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopOnce   sync.Once
	stopped    bool
	// evictions counts revocations; Subscribe re-checks access when it moved.
	evictions  uint64
	membership MembershipChecker
	logger     *slog.Logger
	mu         sync.RWMutex
}

var (
	_ notify.Relay   = (*Hub)(nil)
	_ notify.Evictor = (*Hub)(nil)
)

func NewHub(membership MembershipChecker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		membership: membership,
		logger:     logger,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]bool)
			h.channels = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for channel := range client.channels {
					h.removeLocked(channel, client)
				}
				client.Close()
			}
			h.mu.Unlock()
		}
	}
}

// Stop gracefully shuts down the hub and disconnects every client.
// It is safe to call from several goroutines.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Register adds a client and subscribes it to its own user channel. It is
// synchronous so that events published after it returns reach the client.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrHubStopped
	}
	h.clients[client] = true
	h.addLocked(notify.UserChannel(client.userID), client)
	return nil
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish delivers an event to every client subscribed to channel.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	msg, err := NewEventMessage(channel, event, payload)
	if err != nil {
		return fmt.Errorf("build event message: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return ErrHubStopped
	}

	for client := range h.channels[channel] {
		if !client.trySend(data) {
			h.logger.Warn("dropping event for slow client",
				"channel", channel,
				"event", event,
				"user_id", client.userID,
			)
		}
	}
	return nil
}

// Subscribe adds client to channel after checking it may listen there. When
// an eviction lands between the check and the add, access is checked again
// so a revoked member cannot slip back in.
func (h *Hub) Subscribe(ctx context.Context, client *Client, channel string) error {
	for attempt := 0; attempt < maxSubscribeAttempts; attempt++ {
		h.mu.RLock()
		seen := h.evictions
		h.mu.RUnlock()

		if err := h.authorize(ctx, client.userID, channel); err != nil {
			return err
		}

		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			return ErrHubStopped
		}
		if _, ok := h.clients[client]; !ok {
			h.mu.Unlock()
			return ErrHubStopped
		}
		if h.evictions != seen {
			h.mu.Unlock()
			continue
		}
		h.addLocked(channel, client)
		h.mu.Unlock()
		return nil
	}
	return errSubscribeRaced
}

// Evict drops every connection of userID from channel. Evicted clients get
// an UNSUBSCRIBED frame for the channel.
func (h *Hub) Evict(channel string, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictions++
	for client := range h.channels[channel] {
		if client.userID == userID {
			h.evictLocked(channel, client)
		}
	}
}

// CloseChannel drops every subscriber of channel.
func (h *Hub) CloseChannel(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictions++
	for client := range h.channels[channel] {
		h.evictLocked(channel, client)
	}
}

func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(channel, client)
}

// SubscriberCount returns how many clients listen on channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) authorize(ctx context.Context, userID uuid.UUID, channel string) error {
	switch {
	case strings.HasPrefix(channel, "user-"):
		if channel != notify.UserChannel(userID) {
			return ErrForbidden
		}
		return nil

	case strings.HasPrefix(channel, "party-"):
		partyID, err := uuid.Parse(strings.TrimPrefix(channel, "party-"))
		if err != nil {
			return ErrUnknownChannel
		}
		if h.membership == nil {
			return ErrForbidden
		}
		ctx, cancel := context.WithTimeout(ctx, membershipCheckTimeout)
		defer cancel()
		ok, err := h.membership.IsMember(ctx, partyID, userID)
		if err != nil {
			return fmt.Errorf("check party membership: %w", err)
		}
		if !ok {
			return ErrForbidden
		}
		return nil
	}
	return ErrUnknownChannel
}

func (h *Hub) addLocked(channel string, client *Client) {
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]bool)
		h.channels[channel] = subs
	}
	subs[client] = true
	client.channels[channel] = true
}

func (h *Hub) evictLocked(channel string, client *Client) {
	h.removeLocked(channel, client)
	msg, err := NewMessage(MessageTypeUnsubscribed, ChannelPayload{Channel: channel})
	if err != nil {
		return
	}
	client.Send(msg)
}

func (h *Hub) removeLocked(channel string, client *Client) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(client.channels, channel)
}
