package websocket_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/testutil"
	"github.com/dom/rally-league/internal/websocket"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 2 * time.Second

func TestHub_Channels(t *testing.T) {
	ts := testutil.NewTestServer(t)
	ctx := context.Background()

	leader, leaderToken := testutil.NewUserBuilder().WithRiotID("").BuildAndAuthenticate(t, ts)
	_, otherToken := testutil.NewUserBuilder().WithRiotID("").BuildAndAuthenticate(t, ts)

	post := testutil.NewPostBuilder().WithOwner(leader).Build(t, ts.DB.DB)
	app := testutil.NewApplicationBuilder(post).Build(t, ts.DB.DB)
	result, err := ts.Services.Application.Resolve(ctx, app.ID, leader.ID, domain.DecisionAccept)
	require.NoError(t, err)
	partyChannel := notify.PartyChannel(result.Party.ID)

	leaderWS := testutil.NewWSClient(t, ts.WebSocketURL(leaderToken))
	otherWS := testutil.NewWSClient(t, ts.WebSocketURL(otherToken))

	t.Run("own user channel is automatic", func(t *testing.T) {
		require.NoError(t, ts.Hub.Publish(ctx, notify.UserChannel(leader.ID), "ping", map[string]int{"n": 1}))
		var payload map[string]int
		leaderWS.ExpectEvent(notify.UserChannel(leader.ID), "ping", &payload, timeout)
		assert.Equal(t, 1, payload["n"])
	})

	t.Run("someone else's user channel", func(t *testing.T) {
		errPayload := otherWS.Subscribe(notify.UserChannel(leader.ID), timeout)
		require.NotNil(t, errPayload)
		assert.Equal(t, "FORBIDDEN", errPayload.Code)
	})

	t.Run("party channel needs membership", func(t *testing.T) {
		errPayload := otherWS.Subscribe(partyChannel, timeout)
		require.NotNil(t, errPayload)
		assert.Equal(t, "FORBIDDEN", errPayload.Code)

		assert.Nil(t, leaderWS.Subscribe(partyChannel, timeout))
		assert.Equal(t, 1, ts.Hub.SubscriberCount(partyChannel))
	})

	t.Run("unknown channel", func(t *testing.T) {
		errPayload := leaderWS.Subscribe("lobby-123", timeout)
		require.NotNil(t, errPayload)
		assert.Equal(t, "UNKNOWN_CHANNEL", errPayload.Code)
	})

	t.Run("events stay on their channel", func(t *testing.T) {
		require.NoError(t, ts.Hub.Publish(ctx, partyChannel, notify.EventChatMessage, map[string]string{"content": "hi"}))
		leaderWS.ExpectEvent(partyChannel, notify.EventChatMessage, nil, timeout)
		otherWS.ExpectNoEvent(200 * time.Millisecond)
	})

	t.Run("unsubscribe", func(t *testing.T) {
		leaderWS.Unsubscribe(partyChannel, timeout)
		assert.Equal(t, 0, ts.Hub.SubscriberCount(partyChannel))
	})

}

func TestHub_RevokesPartyChannelOnLeaveAndDisband(t *testing.T) {
	ts := testutil.NewTestServer(t)
	ctx := context.Background()

	leader, leaderToken := testutil.NewUserBuilder().WithRiotID("").BuildAndAuthenticate(t, ts)
	applicant, applicantToken := testutil.NewUserBuilder().WithRiotID("").BuildAndAuthenticate(t, ts)

	post := testutil.NewPostBuilder().WithOwner(leader).Build(t, ts.DB.DB)
	app := testutil.NewApplicationBuilder(post).WithApplicant(applicant).Build(t, ts.DB.DB)
	result, err := ts.Services.Application.Resolve(ctx, app.ID, leader.ID, domain.DecisionAccept)
	require.NoError(t, err)
	partyID := result.Party.ID
	partyChannel := notify.PartyChannel(partyID)

	leaderWS := testutil.NewWSClient(t, ts.WebSocketURL(leaderToken))
	applicantWS := testutil.NewWSClient(t, ts.WebSocketURL(applicantToken))
	require.Nil(t, leaderWS.Subscribe(partyChannel, timeout))
	require.Nil(t, applicantWS.Subscribe(partyChannel, timeout))
	require.Equal(t, 2, ts.Hub.SubscriberCount(partyChannel))

	t.Run("leaver stops receiving party chat", func(t *testing.T) {
		require.NoError(t, ts.Services.Party.Leave(ctx, partyID, applicant.ID))

		msg := applicantWS.ExpectMessage(websocket.MessageTypeUnsubscribed, timeout)
		var payload websocket.ChannelPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, partyChannel, payload.Channel)
		assert.Equal(t, 1, ts.Hub.SubscriberCount(partyChannel))

		leaderWS.ExpectEvent(partyChannel, notify.EventPartyMemberLeft, nil, timeout)

		_, err := ts.Services.Party.SendMessage(ctx, partyID, leader.ID, "still here?")
		require.NoError(t, err)
		leaderWS.ExpectEvent(partyChannel, notify.EventChatMessage, nil, timeout)
		applicantWS.ExpectNoEvent(200 * time.Millisecond)
	})

	t.Run("leaver cannot subscribe again", func(t *testing.T) {
		errPayload := applicantWS.Subscribe(partyChannel, timeout)
		require.NotNil(t, errPayload)
		assert.Equal(t, "FORBIDDEN", errPayload.Code)
	})

	t.Run("disband closes the channel", func(t *testing.T) {
		require.NoError(t, ts.Services.Party.Disband(ctx, partyID, leader.ID))

		leaderWS.ExpectEvent(partyChannel, notify.EventPartyDisbanded, nil, timeout)
		leaderWS.ExpectMessage(websocket.MessageTypeUnsubscribed, timeout)
		assert.Equal(t, 0, ts.Hub.SubscriberCount(partyChannel))

		require.NoError(t, ts.Hub.Publish(ctx, partyChannel, notify.EventChatMessage, map[string]string{"content": "late"}))
		leaderWS.ExpectNoEvent(200 * time.Millisecond)
	})
}

func TestHub_RejectsBadToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, resp, err := gorillaWS.DefaultDialer.Dial(ts.WebSocketURL("garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type failingMembership struct{}

func (failingMembership) IsMember(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, errors.New("db down")
}

func TestHub_StopRejectsPublish(t *testing.T) {
	hub := websocket.NewHub(failingMembership{}, nil)
	go hub.Run()

	require.NoError(t, hub.Publish(context.Background(), "user-x", "e", nil))
	hub.Stop()
	hub.Stop()
	assert.ErrorIs(t, hub.Publish(context.Background(), "user-x", "e", nil), websocket.ErrHubStopped)
}

func TestHub_ConcurrentStop(t *testing.T) {
	hub := websocket.NewHub(failingMembership{}, nil)
	go hub.Run()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Stop()
		}()
	}
	wg.Wait()
	assert.ErrorIs(t, hub.Publish(context.Background(), "user-x", "e", nil), websocket.ErrHubStopped)
}
