package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/dom/rally-league/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type publishCall struct {
	Channel string
	Event   string
	Payload interface{}
}

// FakeRelay records publishes and returns PublishFunc's result.
type FakeRelay struct {
	mu          sync.Mutex
	calls       []publishCall
	PublishFunc func(ctx context.Context, channel, event string, payload interface{}) error
}

func (f *FakeRelay) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, publishCall{Channel: channel, Event: event, Payload: payload})
	f.mu.Unlock()
	if f.PublishFunc != nil {
		return f.PublishFunc(ctx, channel, event, payload)
	}
	return nil
}

func (f *FakeRelay) Calls() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

func TestChannels(t *testing.T) {
	id := uuid.MustParse("2f1c3e8a-5b7d-4c1e-9f0a-1b2c3d4e5f60")
	assert.Equal(t, "user-2f1c3e8a-5b7d-4c1e-9f0a-1b2c3d4e5f60", notify.UserChannel(id))
	assert.Equal(t, "party-2f1c3e8a-5b7d-4c1e-9f0a-1b2c3d4e5f60", notify.PartyChannel(id))
	assert.Equal(t, "rally.party-2f1c3e8a-5b7d-4c1e-9f0a-1b2c3d4e5f60", notify.Subject(notify.PartyChannel(id)))
}

func TestNotifier_SwallowsRelayErrors(t *testing.T) {
	relay := &FakeRelay{
		PublishFunc: func(context.Context, string, string, interface{}) error {
			return errors.New("relay down")
		},
	}
	var logs bytes.Buffer
	n := notify.NewNotifier(relay, slog.New(slog.NewTextHandler(&logs, nil)))

	n.Notify(context.Background(), "user-x", notify.EventRequestAccepted, map[string]string{"partyId": "p"})

	calls := relay.Calls()
	assert.Len(t, calls, 1)
	assert.Equal(t, notify.EventRequestAccepted, calls[0].Event)
	assert.Contains(t, logs.String(), "notification publish failed")
	assert.Contains(t, logs.String(), "relay down")
}

func TestNotifier_OutlivesCanceledRequest(t *testing.T) {
	var sawErr error
	relay := &FakeRelay{
		PublishFunc: func(ctx context.Context, _, _ string, _ interface{}) error {
			sawErr = ctx.Err()
			return nil
		},
	}
	n := notify.NewNotifier(relay, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, "user-x", notify.EventRequestRejected, nil)

	assert.NoError(t, sawErr)
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *notify.Notifier
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "user-x", notify.EventChatMessage, nil)
	})
}

func TestMulti_Publish(t *testing.T) {
	ok := &FakeRelay{}
	failing := &FakeRelay{
		PublishFunc: func(context.Context, string, string, interface{}) error {
			return errors.New("boom")
		},
	}

	err := notify.Multi{failing, ok}.Publish(context.Background(), "party-1", notify.EventChatMessage, "hi")

	assert.EqualError(t, err, "boom")
	assert.Len(t, ok.Calls(), 1, "a failing relay must not stop the others")
	assert.Len(t, failing.Calls(), 1)
}
