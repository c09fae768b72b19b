package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type acceptedParty struct {
	party     *domain.Party
	leader    *domain.User
	applicant *domain.User
}

// acceptInto creates a post and an application and accepts it.
func acceptInto(t *testing.T, env *testEnv) *acceptedParty {
	t.Helper()
	ctx := context.Background()

	leader, _ := testutil.NewUserBuilder().WithRiotID("").Build(t, env.db.DB)
	applicant, _ := testutil.NewUserBuilder().WithRiotID("").Build(t, env.db.DB)
	post := testutil.NewPostBuilder().WithOwner(leader).Build(t, env.db.DB)
	app := testutil.NewApplicationBuilder(post).WithApplicant(applicant).Build(t, env.db.DB)

	result, err := env.services.Application.Resolve(ctx, app.ID, leader.ID, domain.DecisionAccept)
	require.NoError(t, err)
	env.events.Reset()

	return &acceptedParty{party: result.Party, leader: leader, applicant: applicant}
}

func TestPartyService_GetMembers(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)

	roster, err := svc.GetMembers(ctx, ap.party.ID, ap.applicant.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, ap.leader.ID, roster[0].ID)
	assert.Equal(t, domain.PartyRoleLeader, roster[0].Role)
	assert.Equal(t, ap.applicant.ID, roster[1].ID)
	require.NotNil(t, roster[0].Stats, "stats resolved through the lookup")
	assert.Equal(t, domain.TierGold, roster[0].Stats.SoloTier())

	t.Run("outsider is refused", func(t *testing.T) {
		_, err := svc.GetMembers(ctx, ap.party.ID, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	})

	t.Run("stats outage leaves stats empty", func(t *testing.T) {
		// Expire the snapshots written by the first call.
		require.NoError(t, env.db.DB.Model(&domain.User{}).
			Where("id IN ?", []uuid.UUID{ap.leader.ID, ap.applicant.ID}).
			Update("stats_refreshed_at", time.Now().Add(-24*time.Hour)).Error)
		env.stats.Failing(domain.NewError(domain.ErrUpstreamUnavailable, "down"))

		roster, err := svc.GetMembers(ctx, ap.party.ID, ap.leader.ID)
		require.NoError(t, err)
		require.Len(t, roster, 2)
		assert.Nil(t, roster[0].Stats)
		assert.Nil(t, roster[1].Stats)
	})
}

func TestPartyService_ListForUser(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)

	parties, err := svc.ListForUser(ctx, ap.applicant.ID)
	require.NoError(t, err)
	require.Len(t, parties, 1)
	assert.Equal(t, ap.party.ID, parties[0].Party.ID)
	assert.Equal(t, domain.PartyRoleMember, parties[0].Role)

	none, err := svc.ListForUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestPartyService_Leave(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)
	_, err := svc.SendMessage(ctx, ap.party.ID, ap.leader.ID, "gl hf")
	require.NoError(t, err)

	t.Run("outsider", func(t *testing.T) {
		assert.ErrorIs(t, svc.Leave(ctx, ap.party.ID, uuid.New()), domain.ErrNotAMember)
	})

	t.Run("unknown party", func(t *testing.T) {
		assert.ErrorIs(t, svc.Leave(ctx, uuid.New(), ap.leader.ID), domain.ErrPartyNotFound)
	})

	t.Run("leader leaves without handing over", func(t *testing.T) {
		require.NoError(t, svc.Leave(ctx, ap.party.ID, ap.leader.ID))

		members, err := env.repos.PartyMember.ListByParty(ctx, ap.party.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, domain.PartyRoleMember, members[0].Role)

		left := env.events.Find(notify.EventPartyMemberLeft)
		require.Len(t, left, 1)
		assert.Equal(t, notify.PartyChannel(ap.party.ID), left[0].Channel)
		var event service.MemberLeftEvent
		require.NoError(t, json.Unmarshal(left[0].Payload, &event))
		assert.Equal(t, int64(1), event.Remaining)

		assert.Equal(t, []testutil.Eviction{
			{Channel: notify.PartyChannel(ap.party.ID), UserID: ap.leader.ID},
		}, env.events.Evictions(), "the leaver loses the live party feed")
	})

	t.Run("last member deletes the party", func(t *testing.T) {
		require.NoError(t, svc.Leave(ctx, ap.party.ID, ap.applicant.ID))

		_, err := env.db.FindParty(ap.party.ID)
		assert.Error(t, err)

		var chat int64
		require.NoError(t, env.db.DB.Model(&domain.ChatMessage{}).Where("party_id = ?", ap.party.ID).Count(&chat).Error)
		assert.Zero(t, chat)

		evictions := env.events.Evictions()
		require.Len(t, evictions, 2)
		assert.Equal(t, testutil.Eviction{Channel: notify.PartyChannel(ap.party.ID)}, evictions[1])

		assert.ErrorIs(t, svc.Leave(ctx, ap.party.ID, ap.applicant.ID), domain.ErrPartyNotFound)
	})
}

func TestPartyService_Disband(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)

	assert.ErrorIs(t, svc.Disband(ctx, ap.party.ID, ap.applicant.ID), domain.ErrNotPartyLeader)
	assert.ErrorIs(t, svc.Disband(ctx, ap.party.ID, uuid.New()), domain.ErrNotAMember)
	assert.Empty(t, env.events.Events())
	assert.Empty(t, env.events.Evictions())

	require.NoError(t, svc.Disband(ctx, ap.party.ID, ap.leader.ID))

	count, err := env.repos.PartyMember.Count(ctx, ap.party.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	disbanded := env.events.Find(notify.EventPartyDisbanded)
	require.Len(t, disbanded, 1)
	assert.Equal(t, notify.PartyChannel(ap.party.ID), disbanded[0].Channel)
	assert.Equal(t, []testutil.Eviction{{Channel: notify.PartyChannel(ap.party.ID)}}, env.events.Evictions())

	assert.ErrorIs(t, svc.Disband(ctx, ap.party.ID, ap.leader.ID), domain.ErrPartyNotFound)
}

func TestPartyService_Messages(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)

	first, err := svc.SendMessage(ctx, ap.party.ID, ap.leader.ID, "  who's jungling?  ")
	require.NoError(t, err)
	assert.Equal(t, "who's jungling?", first.Content)
	assert.Equal(t, ap.leader.DisplayName, first.SenderName)

	second, err := svc.SendMessage(ctx, ap.party.ID, ap.applicant.ID, "me")
	require.NoError(t, err)

	pushed := env.events.Find(notify.EventChatMessage)
	require.Len(t, pushed, 2)
	assert.Equal(t, notify.PartyChannel(ap.party.ID), pushed[0].Channel)

	t.Run("full history", func(t *testing.T) {
		msgs, err := svc.ListMessages(ctx, ap.party.ID, ap.applicant.ID, domain.ChatCursor{})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, first.ID, msgs[0].ID)
		assert.Equal(t, second.ID, msgs[1].ID)
		assert.Equal(t, ap.applicant.DisplayName, msgs[1].SenderName)
		assert.Equal(t, ap.applicant.RiotID, msgs[1].SenderRiotID)
	})

	t.Run("since the first message", func(t *testing.T) {
		msgs, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{Since: &first.CreatedAt})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, second.ID, msgs[0].ID)
	})

	t.Run("since the last message", func(t *testing.T) {
		msgs, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{Since: &second.CreatedAt})
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("after the first message", func(t *testing.T) {
		msgs, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{After: &first.ID})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, second.ID, msgs[0].ID)
		assert.Equal(t, ap.applicant.DisplayName, msgs[0].SenderName)
	})

	t.Run("after an unknown message", func(t *testing.T) {
		unknown := uuid.New()
		_, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{After: &unknown})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	tests := []struct {
		name    string
		sender  uuid.UUID
		content string
		wantErr error
	}{
		{"outsider", uuid.New(), "hi", domain.ErrNotAMember},
		{"blank", ap.leader.ID, "   ", domain.ErrValidation},
		{"too long", ap.leader.ID, strings.Repeat("a", domain.MaxChatMessageLength+1), domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, ap.party.ID, tt.sender, tt.content)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("outsider cannot read", func(t *testing.T) {
		_, err := svc.ListMessages(ctx, ap.party.ID, uuid.New(), domain.ChatCursor{})
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	})
}

func TestPartyService_MessagesFollowCommitOrder(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)

	t.Run("a lagging clock still stamps later", func(t *testing.T) {
		base := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
		service.SetPartyClock(svc, func() time.Time { return base })
		first, err := svc.SendMessage(ctx, ap.party.ID, ap.leader.ID, "first")
		require.NoError(t, err)

		// The second sender's clock runs a second behind the first's.
		service.SetPartyClock(svc, func() time.Time { return base.Add(-time.Second) })
		second, err := svc.SendMessage(ctx, ap.party.ID, ap.applicant.ID, "second")
		require.NoError(t, err)
		assert.True(t, second.CreatedAt.After(first.CreatedAt))

		since, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{Since: &first.CreatedAt})
		require.NoError(t, err)
		require.Len(t, since, 1)
		assert.Equal(t, second.ID, since[0].ID)

		after, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{After: &first.ID})
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, second.ID, after[0].ID)
	})

	t.Run("concurrent senders are all seen by a poller", func(t *testing.T) {
		frozen := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
		service.SetPartyClock(svc, func() time.Time { return frozen })

		const sends = 10
		var g errgroup.Group
		for i := 0; i < sends; i++ {
			sender := ap.leader.ID
			if i%2 == 1 {
				sender = ap.applicant.ID
			}
			g.Go(func() error {
				_, err := svc.SendMessage(ctx, ap.party.ID, sender, "go next")
				return err
			})
		}
		require.NoError(t, g.Wait())

		history, err := svc.ListMessages(ctx, ap.party.ID, ap.leader.ID, domain.ChatCursor{})
		require.NoError(t, err)
		require.Len(t, history, sends+2)
		for i := 1; i < len(history); i++ {
			assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt),
				"message %d is not stamped after its predecessor", i)
		}

		// Walking forward from the first message reaches every later one.
		seen := 0
		cursor := history[0].ID
		for {
			page, err := svc.ListMessages(ctx, ap.party.ID, ap.applicant.ID, domain.ChatCursor{After: &cursor})
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			seen += len(page)
			cursor = page[len(page)-1].ID
		}
		assert.Equal(t, sends+1, seen)
	})
}

func TestPartyService_SendRacingDisband(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	ap := acceptInto(t, env)

	const senders = 8
	var (
		g    errgroup.Group
		sent atomic.Int32
	)
	for i := 0; i < senders; i++ {
		g.Go(func() error {
			_, err := svc.SendMessage(ctx, ap.party.ID, ap.applicant.ID, "wait for me")
			switch {
			case err == nil:
				sent.Add(1)
				return nil
			case errors.Is(err, domain.ErrNotAMember):
				return nil
			default:
				return err
			}
		})
	}
	g.Go(func() error {
		return svc.Disband(ctx, ap.party.ID, ap.leader.ID)
	})
	require.NoError(t, g.Wait())

	var chat int64
	require.NoError(t, env.db.DB.Model(&domain.ChatMessage{}).Where("party_id = ?", ap.party.ID).Count(&chat).Error)
	assert.Zero(t, chat, "no message outlives the party (%d sends committed first)", sent.Load())

	_, err := svc.SendMessage(ctx, ap.party.ID, ap.applicant.ID, "hello?")
	assert.ErrorIs(t, err, domain.ErrNotAMember)
}

func TestPartyService_Reconcile(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Party
	ctx := context.Background()

	// An accepted application whose party was never written.
	post := testutil.NewPostBuilder().Build(t, env.db.DB)
	orphan := testutil.NewApplicationBuilder(post).Build(t, env.db.DB)
	ok, err := env.repos.Application.Transition(ctx, orphan.ID, domain.ApplicationStatusPending, domain.ApplicationStatusAccepted, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	// A healthy party that was later disbanded must stay gone.
	ap := acceptInto(t, env)
	require.NoError(t, svc.Disband(ctx, ap.party.ID, ap.leader.ID))

	repaired, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	party, err := env.db.FindPartyByApplication(orphan.ID)
	require.NoError(t, err)
	members, err := env.repos.PartyMember.ListByParty(ctx, party.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, post.OwnerID, members[0].UserID)
	assert.Equal(t, orphan.ApplicantID, members[1].UserID)

	repaired, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestReconciler_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	post := testutil.NewPostBuilder().Build(t, env.db.DB)
	orphan := testutil.NewApplicationBuilder(post).Build(t, env.db.DB)
	_, err := env.repos.Application.Transition(ctx, orphan.ID, domain.ApplicationStatusPending, domain.ApplicationStatusAccepted, time.Now())
	require.NoError(t, err)

	r := service.NewReconciler(env.services.Party, "@every 1h", nil)
	require.NoError(t, r.Start())
	r.RunOnce()
	r.Stop()

	_, err = env.db.FindPartyByApplication(orphan.ID)
	assert.NoError(t, err)
}

func TestReconciler_BadSchedule(t *testing.T) {
	env := newTestEnv(t)
	r := service.NewReconciler(env.services.Party, "not a schedule", nil)
	assert.Error(t, r.Start())
}
